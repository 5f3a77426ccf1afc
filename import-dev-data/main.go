// Command import-dev-data loads the sample dataset into MongoDB or wipes it.
//
//	go run ./import-dev-data --import
//	go run ./import-dev-data --delete
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Dzmitry-Rybak/natours/config"
	"github.com/Dzmitry-Rybak/natours/db"
	"github.com/Dzmitry-Rybak/natours/logger"
	"github.com/Dzmitry-Rybak/natours/models"
	"github.com/Dzmitry-Rybak/natours/repository"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// seedUser carries the plain password that models.User never decodes.
type seedUser struct {
	models.User
	Password string `json:"password"`
}

func main() {
	doImport := flag.Bool("import", false, "insert the sample tours, users and reviews")
	doDelete := flag.Bool("delete", false, "delete every document of the natours collections")
	dataDir := flag.String("data", "dev-data/data", "directory holding tours.json, users.json and reviews.json")
	flag.Parse()

	if *doImport == *doDelete {
		fmt.Fprintln(os.Stderr, "use exactly one of --import or --delete")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel, true)
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	client, err := db.ConnectMongoDB(ctx, cfg.MongoURI(), log)
	if err != nil {
		log.Fatal("mongodb", zap.Error(err))
	}
	defer func() { _ = client.Disconnect(context.Background()) }()
	database := client.Database(cfg.DatabaseName)

	if *doDelete {
		err = deleteData(ctx, database)
	} else {
		err = importData(ctx, database, *dataDir, log)
	}
	if err != nil {
		log.Fatal("dev data", zap.Error(err))
	}
	log.Info("done")
}

func readJSON(dir, name string, out any) error {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func importData(ctx context.Context, database *mongo.Database, dir string, log *zap.Logger) error {
	var (
		tours   []models.Tour
		users   []seedUser
		reviews []models.Review
	)
	if err := errors.Join(
		readJSON(dir, "tours.json", &tours),
		readJSON(dir, "users.json", &users),
		readJSON(dir, "reviews.json", &reviews),
	); err != nil {
		return err
	}
	if err := db.EnsureIndexes(ctx, database); err != nil {
		return err
	}

	reviewRepo := repository.NewReviewRepository(database)
	tourRepo := repository.NewTourRepository(database, reviewRepo)
	userRepo := repository.NewUserRepository(database)

	for i := range tours {
		if err := tourRepo.Create(ctx, &tours[i]); err != nil {
			return fmt.Errorf("tour %q: %w", tours[i].Name, err)
		}
	}
	log.Info("tours imported", zap.Int("count", len(tours)))

	for i := range users {
		u := &users[i].User
		// The sample passwords skip the confirmation check.
		if err := u.SetPassword(users[i].Password, users[i].Password); err != nil {
			return fmt.Errorf("user %q: %w", u.Email, err)
		}
		if err := userRepo.Create(ctx, u); err != nil {
			return fmt.Errorf("user %q: %w", u.Email, err)
		}
	}
	log.Info("users imported", zap.Int("count", len(users)))

	// Create recomputes the tour ratings after every review.
	for i := range reviews {
		if err := reviewRepo.Create(ctx, &reviews[i]); err != nil {
			return fmt.Errorf("review %d: %w", i, err)
		}
	}
	log.Info("reviews imported", zap.Int("count", len(reviews)))
	return nil
}

func deleteData(ctx context.Context, database *mongo.Database) error {
	for _, name := range []string{db.ToursCollection, db.UsersCollection, db.ReviewsCollection, db.BookingsCollection} {
		if _, err := database.Collection(name).DeleteMany(ctx, bson.M{}); err != nil {
			return fmt.Errorf("delete %s: %w", name, err)
		}
	}
	return nil
}
