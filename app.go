package main

import (
	"context"
	"fmt"
	"time"

	"communityera/cluster"
	"communityera/models"

	"github.com/go-playground/validator/v10"
	"github.com/go-redis/redis/v8"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const sweepLockKey = "communityera:cluster:sweep"

type App struct {
	cfg     Config
	log     *zap.Logger
	mongo   *mongo.Client
	db      *mongo.Database
	users   *mongo.Collection
	votes   *mongo.Collection
	reports *mongo.Collection
	redis   *redis.Client

	engine   *cluster.Engine
	geocoder *geocoder
	validate *validator.Validate

	roleOf func(ctx context.Context, uid primitive.ObjectID) (models.Role, error)
}

func newApp(ctx context.Context, cfg Config, log *zap.Logger) (*App, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	db := client.Database(cfg.MongoDB)

	app := &App{
		cfg:      cfg,
		log:      log,
		mongo:    client,
		db:       db,
		users:    db.Collection("users"),
		votes:    db.Collection("votes"),
		reports:  db.Collection("reports"),
		geocoder: newGeocoder(cfg.GeocoderURL, log),
		validate: newValidator(),
	}
	app.roleOf = app.lookupRole

	// Indexes
	if _, err := app.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
	}); err != nil {
		return nil, fmt.Errorf("user indexes: %w", err)
	}
	if _, err := app.votes.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "report", Value: 1}, {Key: "user", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return nil, fmt.Errorf("vote indexes: %w", err)
	}
	store := cluster.NewMongoStore(app.reports)
	if err := store.EnsureIndexes(ctx); err != nil {
		return nil, err
	}

	// Without Redis sweeps are only serialised within this process.
	var locker cluster.Locker
	if cfg.RedisAddr != "" {
		app.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := app.redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		locker = cluster.NewRedisLocker(app.redis, sweepLockKey, cfg.SweepTimeout+time.Minute, log)
	}

	app.engine = cluster.NewEngine(store, cluster.Config{
		Attach: cluster.Threshold{Lat: cfg.AttachEpsilon, Lng: cfg.AttachEpsilon},
		Sweep:  cluster.Threshold{Lat: cfg.SweepEpsilon, Lng: cfg.SweepEpsilon},
	}, locker, log)

	log.Info("connected",
		zap.String("mongo_db", cfg.MongoDB),
		zap.Bool("redis", app.redis != nil),
		zap.Bool("geocoder", app.geocoder != nil),
	)
	return app, nil
}

func (a *App) close(ctx context.Context) {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	_ = a.mongo.Disconnect(ctx)
}
