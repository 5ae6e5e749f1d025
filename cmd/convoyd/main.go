package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/convoylab/convoy/global"
	"github.com/convoylab/convoy/logger"
	"github.com/convoylab/convoy/module/nav"
	"github.com/convoylab/convoy/module/party/mongostore"
	"github.com/convoylab/convoy/service/fanout"
	"github.com/convoylab/convoy/service/gateway"
	"github.com/convoylab/convoy/service/storage"
	"github.com/convoylab/convoy/tools/security"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

func main() {
	defer logger.Sync()

	cfg, err := global.LoadConfig()
	if err != nil {
		logger.Errorf("load config: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// redis: ephemeral location store, presence, nav version counter
	if err := storage.InitRedis(storage.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	}); err != nil {
		logger.Errorf("init redis: %v", err)
		return
	}
	defer func() { _ = storage.CloseRedis() }()
	rdb := storage.GetRedis()

	// mongo: party membership, navigation rows, message log
	mcli, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Mongo.URI))
	if err != nil {
		logger.Errorf("connect mongo: %v", err)
		return
	}
	defer func() { _ = mcli.Disconnect(context.Background()) }()
	if err := mcli.Ping(ctx, readpref.Primary()); err != nil {
		logger.Errorf("ping mongo: %v", err)
		return
	}
	db := mcli.Database(cfg.Mongo.Database)

	parties := mongostore.New(db)
	if err := parties.EnsureIndexes(ctx); err != nil {
		logger.Errorf("ensure party indexes: %v", err)
		return
	}
	navRepo := nav.NewMongoRepo(db)
	if err := navRepo.EnsureIndexes(ctx); err != nil {
		logger.Errorf("ensure nav indexes: %v", err)
		return
	}

	// nats: one logical room per party across all gateway instances
	bus, err := fanout.NewNatsBus(fanout.NatsConfig{
		Servers:  cfg.Nats.Servers,
		Name:     cfg.Server.GatewayID,
		Username: cfg.Nats.Username,
		Password: cfg.Nats.Password,
	})
	if err != nil {
		logger.Errorf("connect nats: %v", err)
		return
	}
	defer func() { _ = bus.Close() }()

	jwtOpts := security.DefaultOptions([]byte(cfg.Auth.Secret))
	if cfg.Auth.Alg != "" {
		jwtOpts.Alg = cfg.Auth.Alg
	}

	coordinator := nav.NewCoordinator(parties, navRepo, storage.NewRedisVersionSource(rdb), bus)
	conns := gateway.NewConnManager(cfg.Server.GatewayID, gateway.ManagerConf{})
	defer conns.Close()

	srv := gateway.NewServer(gateway.Deps{
		Conns:     conns,
		Bus:       bus,
		Locations: storage.NewRedisLocationStore(rdb),
		Presence:  storage.NewRedisPresence(rdb),
		Parties:   parties,
		Users:     parties,
		Messages:  parties,
		Nav:       coordinator,
		JWT:       jwtOpts,
	})

	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/ws", srv.HandleWS)
	r.GET("/healthz", healthHandler(rdb, bus, mcli))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logger.Infof("gateway %s listening on %s", cfg.Server.GatewayID, addr)
	if err := r.Run(addr); err != nil {
		logger.Errorf("http server failed: %v", err)
	}
}

func healthHandler(rdb *redis.Client, bus *fanout.NatsBus, mcli *mongo.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		redisOK := rdb.Ping(ctx).Err() == nil
		mongoOK := mcli.Ping(ctx, readpref.Primary()) == nil
		natsOK := bus.Ping()

		status := http.StatusOK
		if !redisOK || !mongoOK || !natsOK {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"redis": redisOK,
			"mongo": mongoOK,
			"nats":  natsOK,
		})
	}
}
