package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"gomoku/internal/bootstrap"
	domroom "gomoku/internal/domain/room"
	"gomoku/internal/domain/session"
	errs "gomoku/internal/errors"
)

// RoomRepository is the durable side of the room registry: seat-identity
// tokens and the latest snapshot live in redis (with TTL, so abandoned
// rooms age out), finished games are archived to mongo.
type RoomRepository struct {
	cfg   bootstrap.Config
	log   *zap.SugaredLogger
	redis *redis.Client
	mongo *mongo.Database
}

func NewRoomRepository(cfg bootstrap.Config, log *zap.SugaredLogger, redisClient *redis.Client, mongoDB *mongo.Database) *RoomRepository {
	return &RoomRepository{
		cfg:   cfg,
		log:   log,
		redis: redisClient,
		mongo: mongoDB,
	}
}

// SeatClaim records which seat a token held in which room, so the seat
// can be recovered on reconnect before it is reassigned.
type SeatClaim struct {
	RoomID string `json:"room_id"`
	Role   int    `json:"role"`
}

func (r *RoomRepository) ttl() time.Duration {
	return time.Duration(r.cfg.SeatTokenTTLH) * time.Hour
}

func (r *RoomRepository) SaveSeatClaim(ctx context.Context, token string, claim SeatClaim) error {
	payload, err := json.Marshal(claim)
	if err != nil {
		return err
	}
	return r.redis.Set(ctx, "seat:"+token, payload, r.ttl()).Err()
}

func (r *RoomRepository) LoadSeatClaim(ctx context.Context, token string) (SeatClaim, bool) {
	v, err := r.redis.Get(ctx, "seat:"+token).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.log.Errorf("load seat claim: %v", err)
		}
		return SeatClaim{}, false
	}
	var claim SeatClaim
	if err := json.Unmarshal([]byte(v), &claim); err != nil {
		r.log.Errorf("malformed seat claim for token %s: %v", token, err)
		return SeatClaim{}, false
	}
	return claim, true
}

func (r *RoomRepository) DeleteSeatClaim(ctx context.Context, token string) error {
	return r.redis.Del(ctx, "seat:"+token).Err()
}

// SaveRoom keeps the room descriptor in redis for the lifetime of a
// seat-token TTL so reconnecting clients can find it after a restart.
func (r *RoomRepository) SaveRoom(ctx context.Context, rm domroom.Room) error {
	payload, err := json.Marshal(rm)
	if err != nil {
		return err
	}
	return r.redis.Set(ctx, "room:"+rm.ID, payload, r.ttl()).Err()
}

func (r *RoomRepository) LoadRoom(ctx context.Context, roomID string) (domroom.Room, error) {
	v, err := r.redis.Get(ctx, "room:"+roomID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domroom.Room{}, errs.ErrRoomNotFound
		}
		return domroom.Room{}, fmt.Errorf("%w: %v", errs.ErrInternal, err)
	}
	var rm domroom.Room
	if err := json.Unmarshal([]byte(v), &rm); err != nil {
		return domroom.Room{}, fmt.Errorf("%w: %v", errs.ErrInternal, err)
	}
	return rm, nil
}

// ListRooms returns every room descriptor still alive in redis. Records
// that expire mid-scan are skipped.
func (r *RoomRepository) ListRooms(ctx context.Context) ([]domroom.Room, error) {
	rooms := make([]domroom.Room, 0)
	iter := r.redis.Scan(ctx, 0, "room:*", 0).Iterator()
	for iter.Next(ctx) {
		v, err := r.redis.Get(ctx, iter.Val()).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, fmt.Errorf("%w: %v", errs.ErrInternal, err)
		}
		var rm domroom.Room
		if err := json.Unmarshal([]byte(v), &rm); err != nil {
			r.log.Errorf("malformed room record %s: %v", iter.Val(), err)
			continue
		}
		rooms = append(rooms, rm)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrInternal, err)
	}
	return rooms, nil
}

// SaveSnapshot caches the last authoritative snapshot of the room's
// session. Last write wins, which is exactly the room's guarantee.
func (r *RoomRepository) SaveSnapshot(ctx context.Context, roomID string, snap session.Session) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return r.redis.Set(ctx, "snapshot:"+roomID, payload, r.ttl()).Err()
}

func (r *RoomRepository) LoadSnapshot(ctx context.Context, roomID string) (session.Session, bool) {
	v, err := r.redis.Get(ctx, "snapshot:"+roomID).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.log.Errorf("load snapshot: %v", err)
		}
		return session.Session{}, false
	}
	var snap session.Session
	if err := json.Unmarshal([]byte(v), &snap); err != nil {
		r.log.Errorf("malformed snapshot for room %s: %v", roomID, err)
		return session.Session{}, false
	}
	return snap, true
}

// ArchivedGame is what lands in mongo once a room's session finishes.
type ArchivedGame struct {
	RoomID     string          `json:"room_id" bson:"room_id"`
	RuleStyle  string          `json:"rule_style" bson:"rule_style"`
	FinishedAt time.Time       `json:"finished_at" bson:"finished_at"`
	Final      session.Session `json:"final" bson:"final"`
}

func (r *RoomRepository) ArchiveGame(ctx context.Context, archived ArchivedGame) error {
	if r.mongo == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	collection := r.mongo.Collection("games")
	if _, err := collection.InsertOne(ctx, archived); err != nil {
		r.log.Errorf("failed to insert game to database: %v", err)
		return fmt.Errorf("%w: %v", errs.ErrInternal, err)
	}

	r.log.Infof("game archived for room %s", archived.RoomID)
	return nil
}

func (r *RoomRepository) GetArchivedGame(ctx context.Context, roomID string) (ArchivedGame, error) {
	if r.mongo == nil {
		return ArchivedGame{}, errs.ErrGameNotFound
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	collection := r.mongo.Collection("games")
	filter := bson.M{"room_id": roomID}

	var archived ArchivedGame
	err := collection.FindOne(ctx, filter).Decode(&archived)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ArchivedGame{}, errs.ErrGameNotFound
	}
	if err != nil {
		return ArchivedGame{}, fmt.Errorf("%w: %v", errs.ErrInternal, err)
	}
	return archived, nil
}
