// Package di contains dependency injection tokens for the ledger context.
package di

import (
	"github.com/fd1az/arbitrage-engine/business/ledger/app"
	"github.com/fd1az/arbitrage-engine/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Ledger = di.NewToken[*app.Ledger]("ledger.Ledger")
)

// Private dependency tokens - internal to ledger module
var (
	Store = di.NewToken[app.Store]("ledger:store")
)

// GetLedger resolves the execution ledger.
func GetLedger(c di.ServiceRegistry) *app.Ledger {
	return di.GetToken(c, Ledger)
}

func GetStore(c di.ServiceRegistry) app.Store {
	return di.GetToken(c, Store)
}
