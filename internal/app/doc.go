// Package app composes the lottery layer into a running application.
//
// # Architecture Role
//
// The app package wires storage, the domain services and the background jobs
// together and owns their lifecycle. It holds no betting or settlement rules
// itself: those live in internal/app/services/.
//
// # Package Structure
//
//	internal/app/
//	├── application.go      # Application struct, wiring, and lifecycle
//	├── domain/             # Domain models (pure data structures)
//	│   ├── lottery/        # Lotteries, combinations, bets, prizes, results
//	│   └── balance/        # Balances and balance transactions
//	├── storage/            # Storage interfaces and implementations
//	│   ├── interfaces.go   # Store interfaces (LotteryStore, BetStore, etc.)
//	│   ├── memory/         # In-memory implementation for tests and local runs
//	│   └── postgres/       # PostgreSQL implementation for production
//	├── services/
//	│   ├── inventory/      # Combination inventory, uploads, and reservation
//	│   ├── validation/     # Bet validation pipeline
//	│   ├── admission/      # All-or-nothing batch admission
//	│   ├── prizes/         # Prize types and prize plans
//	│   ├── settlement/     # Draw settlement engine
//	│   ├── results/        # Result delivery and the result feed
//	│   ├── query/          # Read models for bets, draws, and summaries
//	│   └── scheduler/      # Cron jobs for result sync and draw rollover
//	├── cache/              # Redis availability cache and draw locks
//	├── httpapi/            # HTTP routes, handlers, and the admin audit log
//	├── runtime/            # Process wiring: database, redis, HTTP server
//	├── system/             # Service lifecycle manager
//	└── metrics/            # Prometheus collectors
//
// # Dependency Direction
//
//	cmd/lotteryd/
//	      │
//	      ▼
//	internal/app/runtime/
//	      │
//	      ├──► internal/app/httpapi/
//	      │
//	      └──► internal/app/ (composition)
//	                  │
//	                  ├──► internal/app/services/
//	                  │           │
//	                  │           └──► internal/app/storage/ (interfaces only)
//	                  │
//	                  └──► internal/app/storage/{memory,postgres}
//
// # Settling a Draw
//
// A delivered result flows through results.Service, which stores it once and
// hands it to settlement.Engine. The engine loads the active prize plan, walks
// the pending bets of the draw, and records each outcome with the winnings
// credited through internal/balance.
package app
