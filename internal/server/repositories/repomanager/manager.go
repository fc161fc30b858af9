// Package repomanager vends repository implementations bound to a DBTX and
// exposes the schema-migration hook.
package repomanager

import (
	"github.com/fileforge/fileforge/internal/dbx"
	"github.com/fileforge/fileforge/internal/server/repositories/credentials"
	"github.com/fileforge/fileforge/internal/server/repositories/events"
	"github.com/fileforge/fileforge/internal/server/repositories/files"
	"github.com/fileforge/fileforge/internal/server/repositories/usage"
)

// RepositoryManager constructs repositories over either a *sql.DB or a
// transaction, so services can run multi-repo work inside dbx.WithTx.
type RepositoryManager interface {
	Credentials(db dbx.DBTX) credentials.Repository
	Usage(db dbx.DBTX) usage.Repository
	Events(db dbx.DBTX) events.Repository
	Files(db dbx.DBTX) files.Repository
}
