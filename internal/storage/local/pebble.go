package local

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"

	"github.com/sufyanAbbasi/efflux/internal/codec"
	"github.com/sufyanAbbasi/efflux/internal/models"
)

var sessionKey = []byte("session/current")

// PebbleStorage is a Pebble LSM-tree backed SessionStore. The record is kept
// in the same wire format as the login response that produced it.
type PebbleStorage struct {
	db     *pebble.DB
	path   string
	logger *zap.Logger
}

// NewPebbleStorage creates a PebbleStorage instance (not yet opened).
func NewPebbleStorage(dbPath string, logger *zap.Logger) *PebbleStorage {
	return &PebbleStorage{
		path:   dbPath,
		logger: logger,
	}
}

// Init opens the Pebble database.
func (p *PebbleStorage) Init() error {
	opts := &pebble.Options{
		Logger: &pebbleLogger{p.logger},
	}
	db, err := pebble.Open(p.path, opts)
	if err != nil {
		return fmt.Errorf("pebble open %s: %w", p.path, err)
	}
	p.db = db
	p.logger.Info("Session store opened", zap.String("path", p.path))
	return nil
}

// Close flushes and closes the database.
func (p *PebbleStorage) Close() error {
	if p.db == nil {
		return nil
	}
	err := p.db.Close()
	p.db = nil
	return err
}

func (p *PebbleStorage) Load() (models.LoginResponse, bool, error) {
	data, closer, err := p.db.Get(sessionKey)
	if errors.Is(err, pebble.ErrNotFound) {
		return models.LoginResponse{}, false, nil
	}
	if err != nil {
		return models.LoginResponse{}, false, fmt.Errorf("pebble get: %w", err)
	}
	defer closer.Close()

	info, err := codec.DecodeLoginResponse(data)
	if err != nil {
		return models.LoginResponse{}, false, fmt.Errorf("decode stored session: %w", err)
	}
	return info, true, nil
}

func (p *PebbleStorage) Save(info models.LoginResponse) error {
	if err := p.db.Set(sessionKey, codec.EncodeLoginResponse(info), pebble.Sync); err != nil {
		return fmt.Errorf("pebble set: %w", err)
	}
	return nil
}

func (p *PebbleStorage) Clear() error {
	if err := p.db.Delete(sessionKey, pebble.Sync); err != nil {
		return fmt.Errorf("pebble delete: %w", err)
	}
	return nil
}

// pebbleLogger adapts zap.Logger to the pebble.Logger interface.
type pebbleLogger struct {
	z *zap.Logger
}

func (l *pebbleLogger) Infof(format string, args ...any) {
	l.z.Sugar().Infof(format, args...)
}

func (l *pebbleLogger) Errorf(format string, args ...any) {
	l.z.Sugar().Errorf(format, args...)
}

func (l *pebbleLogger) Fatalf(format string, args ...any) {
	l.z.Sugar().Fatalf(format, args...)
}
