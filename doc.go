// Package fundmate reconciles dated broker snapshots with trade
// confirmations. It is designed to be deterministic and auditable: a run
// never modifies its inputs, and every change it makes is traced.
//
// A run takes the latest known snapshot of every account and the trades
// confirmed since, and produces the snapshot as of a target date:
//   - Instrument Notation: broker texts describing the same option contract in
//     incompatible notations ("CALL XYZ EXP 09/19/2025 50.0",
//     "XYZ250919C00050000", "XYZ 19SEP25 50 C") are parsed by a Registry of
//     NotationParser into a single identity key.
//   - Transaction Loading: raw trade confirmation rows are validated and
//     normalized into Transaction values, every invalid row being reported.
//   - Matching: each transaction is matched to the positions of its account,
//     oldest lot first.
//   - Delta Application: transactions are applied in trade date order to a
//     private copy of the base snapshot that is only released when the whole
//     batch succeeded.
//   - Price Refresh: each distinct instrument is re-priced once through a
//     PriceService, with a stale fallback when the service fails.
//
// Reconciler sequences these stages and returns the new snapshot with its
// audit trail. The fundmate command-line tool and the store, quote and tc
// packages provide persistence, price services and file ingestion.
package fundmate
