package main

import (
	"context"
	"log"
	"time"

	mongoadapter "github.com/robertarktes/travel-reservations/internal/adapters/mongo"
	"github.com/robertarktes/travel-reservations/internal/catalog"
	"github.com/robertarktes/travel-reservations/internal/config"
	"github.com/robertarktes/travel-reservations/internal/observability"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// catalog-import replaces the MongoDB catalog with the contents of
// CATALOG_FILE.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.MongoURI == "" {
		log.Fatal("catalog import needs MONGO_URI")
	}
	logger := observability.NewLogger(cfg.LogLevel)

	doc, err := catalog.ReadDocument(cfg.CatalogFile)
	if err != nil {
		log.Fatalf("failed to read catalog: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer client.Disconnect(context.Background())

	repo := mongoadapter.NewCatalogRepository(client.Database(cfg.MongoDB), logger)
	if err := repo.Import(ctx, doc); err != nil {
		log.Fatalf("failed to import catalog: %v", err)
	}
	logger.WithField("flights", len(doc.Flights)).WithField("hotels", len(doc.Hotels)).Info("catalog imported")
}
