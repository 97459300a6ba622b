package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/mx-space/presence/internal/config"
	"github.com/mx-space/presence/internal/modules/presence"
	pkgredis "github.com/mx-space/presence/internal/pkg/redis"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	JobName         = "presence_archive"
	snapshotWorkers = 8
)

// ErrDisabled is returned when no bucket is configured.
var ErrDisabled = errors.New("presence archive is not configured")

// Uploader is the part of the S3 client the archive needs.
type Uploader interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Document is one archived snapshot of the ledger.
type Document struct {
	GeneratedAt time.Time  `json:"generated_at"`
	StaleAfter  int64      `json:"stale_after"`
	Locations   []Location `json:"locations"`
}

type Location struct {
	Group   string  `json:"group"`
	Room    string  `json:"room,omitempty"`
	Shard   string  `json:"shard"`
	Entries []Entry `json:"entries"`
}

type Entry struct {
	UserKey   string `json:"user_key"`
	Score     int64  `json:"score"`
	PresentAt int64  `json:"present_at"`
	IsActive  bool   `json:"is_active"`
}

type target struct {
	group string
	room  string
}

// Service snapshots ledger locations and uploads them as JSON documents.
type Service struct {
	layer    *presence.Layer
	pool     *pkgredis.Pool
	uploader Uploader
	cfg      config.ArchiveRuntimeConfig
	logger   *zap.Logger
	now      func() time.Time
}

type Option func(*Service)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithUploader(u Uploader) Option {
	return func(s *Service) { s.uploader = u }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService builds an archive service. Without WithUploader an S3 client is built from cfg
// when a bucket is configured.
func NewService(layer *presence.Layer, pool *pkgredis.Pool, cfg config.ArchiveRuntimeConfig, opts ...Option) *Service {
	s := &Service{
		layer:  layer,
		pool:   pool,
		cfg:    cfg,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.uploader == nil && cfg.Enabled() {
		s.uploader = NewS3Client(cfg)
	}
	return s
}

// NewS3Client builds an S3 client with static credentials and an optional custom endpoint.
func NewS3Client(cfg config.ArchiveRuntimeConfig) *s3.Client {
	return s3.New(s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		UsePathStyle: cfg.PathStyle,
	}, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
}

func (s *Service) Enabled() bool { return s.uploader != nil && s.cfg.Bucket != "" }

// Build snapshots every archive target. Configured targets are used as given; otherwise the
// shards are scanned for ledger locations.
func (s *Service) Build(ctx context.Context) (*Document, error) {
	targets, err := s.targets(ctx)
	if err != nil {
		return nil, err
	}

	locations := make([]Location, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(snapshotWorkers)
	for i, t := range targets {
		g.Go(func() error {
			loc, err := s.snapshot(gctx, t)
			if err != nil {
				return err
			}
			locations[i] = loc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Document{
		GeneratedAt: s.now().UTC(),
		StaleAfter:  int64(s.layer.Ledger().StaleAfter() / time.Second),
		Locations:   locations,
	}, nil
}

func (s *Service) snapshot(ctx context.Context, t target) (Location, error) {
	shard, err := s.layer.Router().Shard(t.group)
	if err != nil {
		return Location{}, err
	}
	roster, err := s.layer.Roster(ctx, t.group, t.room, false)
	if err != nil {
		return Location{}, err
	}
	entries := make([]Entry, 0, len(roster))
	for _, r := range roster {
		entries = append(entries, Entry{
			UserKey:   r.User.Key(),
			Score:     r.Score,
			PresentAt: r.PresentAt.Unix(),
			IsActive:  r.IsActive,
		})
	}
	return Location{Group: t.group, Room: t.room, Shard: shard, Entries: entries}, nil
}

func (s *Service) targets(ctx context.Context) ([]target, error) {
	if len(s.cfg.Targets) > 0 {
		var out []target
		for _, t := range s.cfg.Targets {
			out = append(out, target{group: t.Group})
			for _, room := range t.Rooms {
				out = append(out, target{group: t.Group, room: room})
			}
		}
		return out, nil
	}
	return s.discover(ctx)
}

// discover scans every shard for ledger locations. A location is kept only when the shard
// that holds it is the one its group routes to.
func (s *Service) discover(ctx context.Context) ([]target, error) {
	codec := s.layer.Codec()
	var (
		mu  sync.Mutex
		out []target
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range s.pool.Clients() {
		g.Go(func() error {
			return c.Scan(gctx, codec.Pattern(), func(key string) error {
				group, room, ok := codec.Parse(key)
				if !ok {
					return nil
				}
				if shard, err := s.layer.Router().Shard(group); err != nil || shard != c.Name() {
					return nil
				}
				mu.Lock()
				out = append(out, target{group: group, room: room})
				mu.Unlock()
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: scan: %w", presence.ErrLedgerUnavailable, err)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].group != out[j].group {
			return out[i].group < out[j].group
		}
		return out[i].room < out[j].room
	})
	return out, nil
}

// ObjectKey names the object a document generated at t is stored under.
func (s *Service) ObjectKey(t time.Time) string {
	t = t.UTC()
	return path.Join(s.cfg.Prefix, t.Format("2006"), t.Format("01"), t.Format("02"),
		fmt.Sprintf("presence-%d.json", t.Unix()))
}

// Export builds a document and uploads it. It returns the object key.
func (s *Service) Export(ctx context.Context) (string, *Document, error) {
	if !s.Enabled() {
		return "", nil, ErrDisabled
	}
	doc, err := s.Build(ctx)
	if err != nil {
		return "", nil, err
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return "", nil, err
	}

	key := s.ObjectKey(doc.GeneratedAt)
	_, err = s.uploader.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", nil, fmt.Errorf("upload %s: %w", key, err)
	}

	s.logger.Info("presence archive uploaded",
		zap.String("bucket", s.cfg.Bucket),
		zap.String("key", key),
		zap.Int("locations", len(doc.Locations)))
	return key, doc, nil
}
