package idgen

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/sonyflake"
)

// TempIdPrefix marks client-generated message identifiers. Server message
// ids are plain integers, so a prefixed uuid can never collide with one.
const TempIdPrefix = "tmp-"

// NewTempId generates a temporary client-local message identifier used for
// optimistic rendering until the server assigns the real id.
func NewTempId() string {
	return TempIdPrefix + uuid.NewString()
}

// IsTempId reports whether id is a client-generated temporary identifier.
func IsTempId(id string) bool {
	return strings.HasPrefix(id, TempIdPrefix)
}

// OperationIdGenerator is the interface for generating operation ids used to
// correlate client requests in logs.
type OperationIdGenerator interface {
	NextId() (string, error)
}

// SonyflakeGenerator implements OperationIdGenerator using sonyflake
type SonyflakeGenerator struct {
	sf *sonyflake.Sonyflake
}

// NewSonyflakeGenerator creates a new SonyflakeGenerator
func NewSonyflakeGenerator(machineId uint16) (*SonyflakeGenerator, error) {
	st := sonyflake.Settings{
		StartTime: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		MachineID: func() (uint16, error) {
			return machineId, nil
		},
	}

	sf, err := sonyflake.New(st)
	if err != nil {
		return nil, fmt.Errorf("failed to create sonyflake: %w", err)
	}

	return &SonyflakeGenerator{sf: sf}, nil
}

// NextId generates a new operation id
func (g *SonyflakeGenerator) NextId() (string, error) {
	id, err := g.sf.NextID()
	if err != nil {
		return "", fmt.Errorf("failed to generate id: %w", err)
	}
	return fmt.Sprintf("%d", id), nil
}

// Global default generator
var (
	defaultGenerator OperationIdGenerator
	once             sync.Once
	initErr          error
)

// SetDefaultGenerator sets the default operation id generator
func SetDefaultGenerator(gen OperationIdGenerator) {
	defaultGenerator = gen
}

// GetDefaultGenerator returns the default operation id generator.
// If not set, creates a SonyflakeGenerator with machineId 1.
func GetDefaultGenerator() (OperationIdGenerator, error) {
	once.Do(func() {
		if defaultGenerator == nil {
			defaultGenerator, initErr = NewSonyflakeGenerator(1)
		}
	})
	if initErr != nil {
		return nil, initErr
	}
	return defaultGenerator, nil
}

// NextOperationId generates an operation id using the default generator.
// Falls back to a uuid when sonyflake initialization fails, so request
// logging never blocks an actual call.
func NextOperationId() string {
	gen, err := GetDefaultGenerator()
	if err != nil {
		return uuid.NewString()
	}
	id, err := gen.NextId()
	if err != nil {
		return uuid.NewString()
	}
	return id
}
