package vkauth

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	enrollmentKeyPrefix     = "ven"
	enrollmentRecordVersion = 1
)

var errEnrollmentBackend = errors.New("enrollment backend unavailable")

// pendingEnrollment holds an unconfirmed TOTP setup. It lives only in Redis
// under a TTL: abandoning the enrollment leaves no durable trace, and the
// identity store is touched only on confirmation.
type pendingEnrollment struct {
	EnrollmentID string
	Secret       []byte
	BackupHashes [][32]byte
	ExpiresAt    int64
}

type enrollmentStore struct {
	redis *redis.Client
}

func newEnrollmentStore(redisClient *redis.Client) *enrollmentStore {
	return &enrollmentStore{redis: redisClient}
}

// Keyed by identity so a fresh BeginTOTPEnrollment silently replaces any
// earlier pending attempt for the same identity.
func (s *enrollmentStore) key(identityID string) string {
	return enrollmentKeyPrefix + ":" + identityID
}

func (s *enrollmentStore) Save(
	ctx context.Context,
	identityID string,
	record *pendingEnrollment,
	ttl time.Duration,
) error {
	encoded, err := encodeEnrollment(record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(identityID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", errEnrollmentBackend, err)
	}
	return nil
}

func (s *enrollmentStore) Get(ctx context.Context, identityID string) (*pendingEnrollment, error) {
	data, err := s.redis.Get(ctx, s.key(identityID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrEnrollmentExpired
		}
		return nil, fmt.Errorf("%w: %v", errEnrollmentBackend, err)
	}

	record, err := decodeEnrollment(data)
	if err != nil {
		return nil, err
	}
	if time.Now().Unix() > record.ExpiresAt {
		_, _ = s.redis.Del(ctx, s.key(identityID)).Result()
		return nil, ErrEnrollmentExpired
	}
	return record, nil
}

func (s *enrollmentStore) Delete(ctx context.Context, identityID string) error {
	if err := s.redis.Del(ctx, s.key(identityID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", errEnrollmentBackend, err)
	}
	return nil
}

func encodeEnrollment(record *pendingEnrollment) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(enrollmentRecordVersion)

	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}

	if len(record.EnrollmentID) > 255 {
		return nil, errors.New("enrollment id too long")
	}
	buf.WriteByte(byte(len(record.EnrollmentID)))
	buf.WriteString(record.EnrollmentID)

	if len(record.Secret) > 255 {
		return nil, errors.New("enrollment secret too long")
	}
	buf.WriteByte(byte(len(record.Secret)))
	buf.Write(record.Secret)

	if len(record.BackupHashes) > 255 {
		return nil, errors.New("too many backup hashes")
	}
	buf.WriteByte(byte(len(record.BackupHashes)))
	for _, h := range record.BackupHashes {
		buf.Write(h[:])
	}

	return buf.Bytes(), nil
}

func decodeEnrollment(data []byte) (*pendingEnrollment, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != enrollmentRecordVersion {
		return nil, errors.New("invalid enrollment record version")
	}

	record := &pendingEnrollment{}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}

	idLen, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	id := make([]byte, idLen)
	if _, err := io.ReadFull(reader, id); err != nil {
		return nil, err
	}
	record.EnrollmentID = string(id)

	secretLen, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	secret := make([]byte, secretLen)
	if _, err := io.ReadFull(reader, secret); err != nil {
		return nil, err
	}
	record.Secret = secret

	hashCount, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	record.BackupHashes = make([][32]byte, hashCount)
	for i := range record.BackupHashes {
		if _, err := io.ReadFull(reader, record.BackupHashes[i][:]); err != nil {
			return nil, err
		}
	}

	return record, nil
}
