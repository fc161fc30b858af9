package config

import (
	"flag"
	"os"
	"time"

	"github.com/fileforge/fileforge/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret key
//	-r string   Redis address (empty uses the in-process cache)
//	-u string   S3 access key
//	-p string   S3 secret key
//	-b string   S3 bucket for registered uploads
//	-q string   S3 bucket for guest uploads
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-t int      signed upload authorization validity, minutes
//	-k int      guest upload retention, hours
//
// Notes:
//   - The function first filters os.Args to only the flags it recognizes using
//     flagx.FilterArgs, avoiding collisions with other components.
//   - Duration flags are accepted as integers and then converted to
//     time.Duration values.
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-s", "-r", "-u", "-p", "-b", "-q", "-g", "-e", "-t", "-k"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.StringVar(&config.RedisAddr, "r", config.RedisAddr, "redis address")

	fs.StringVar(&config.S3AccessKey, "u", config.S3AccessKey, "S3 access key")
	fs.StringVar(&config.S3SecretKey, "p", config.S3SecretKey, "S3 secret key")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket for registered uploads")
	fs.StringVar(&config.S3GuestBucket, "q", config.S3GuestBucket, "S3 bucket for guest uploads")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	signValidity := fs.Int("t", int(config.SignValidityDuration.Minutes()), "sign_validity_duration (in minutes)")
	guestRetention := fs.Int("k", int(config.GuestRetentionDuration.Hours()), "guest_retention_duration (in hours)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.SignValidityDuration = time.Duration(*signValidity) * time.Minute
	config.GuestRetentionDuration = time.Duration(*guestRetention) * time.Hour
}
