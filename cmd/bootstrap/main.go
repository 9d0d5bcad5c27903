// Command bootstrap initializes a Postgres database for the returns
// service: schema migration plus the reference policy, customer and order
// seed set. It is safe to re-run; orders are only seeded into an empty
// table.
package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"time"

	_ "github.com/lib/pq"

	"github.com/Mindburn-Labs/returns-core/pkg/audit"
	"github.com/Mindburn-Labs/returns-core/pkg/seed"
	"github.com/Mindburn-Labs/returns-core/pkg/store"
)

func main() {
	dbURL := os.Getenv("DATABASE_URL")
	if len(os.Args) > 1 {
		dbURL = os.Args[1]
	}
	if dbURL == "" {
		log.Fatal("Usage: bootstrap <db_url> (or set DATABASE_URL)")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("Failed to open db: %v", err)
	}
	defer func() { _ = db.Close() }()

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("DB ping failed: %v", err)
	}

	log.Println("[bootstrap] Initializing schemas...")

	st := store.NewPostgresStoreFromDB(db)
	if err := st.MigratePostgres(ctx); err != nil {
		log.Fatalf("Failed to migrate store: %v", err)
	}

	auditLog := audit.NewPostgresLog(db)
	if err := auditLog.Migrate(ctx); err != nil {
		log.Fatalf("Failed to migrate audit log: %v", err)
	}

	log.Println("[bootstrap] Schemas initialized.")

	n, err := st.CountOrders(ctx)
	if err != nil {
		log.Fatalf("Failed to count orders: %v", err)
	}
	if n > 0 {
		log.Printf("[bootstrap] %d orders present, skipping seed.", n)
		return
	}

	log.Println("[bootstrap] Seeding reference data...")
	if err := seed.Apply(ctx, st, time.Now()); err != nil {
		log.Fatalf("Failed to seed: %v", err)
	}
	log.Printf("[bootstrap] Seeded %d policies, %d customers, %d orders.",
		len(seed.Policies()), len(seed.Customers()), len(seed.Orders(time.Now())))
	log.Println("[bootstrap] Done.")
}
