// Package journal implements the entry writer/reader, seek family, and file
// lifecycle (§4.5, §4.7, §4.8): the facade that ties the heap, hash tables,
// entry-array chains, and offline state machine into one open journal file.
package journal

import (
	"github.com/arloliu/jrnl/format"
	"github.com/arloliu/jrnl/internal/options"
	"github.com/arloliu/jrnl/metrics"
	"go.uber.org/zap"
)

// defaultCompressThreshold is the minimum payload length (§4.5 step 3c) a
// Data object's value must reach before compression is attempted, even when
// the file has a compression codec enabled.
const defaultCompressThreshold = 512

// minCompressThreshold is the floor §4.5 names for compress_threshold.
const minCompressThreshold = 8

// Template carries the identifiers a successor file inherits from its
// predecessor on rotate (§4.7 "Rotate"): the seqnum_id lineage and the tail
// sequence number so seqnums stay strictly increasing across the rotation.
type Template struct {
	SeqnumID        [16]byte
	TailEntrySeqnum uint64
}

// Config is the resolved set of open-time options for a File.
type Config struct {
	Codec             format.CompressionCodec
	CompressThreshold int
	Sealing           bool
	KeyedHash         bool
	Metrics           *metrics.Metrics
	Logger            *zap.Logger
	Template          *Template
}

func defaultConfig() Config {
	return Config{
		Codec:             format.CompressionCodecNone,
		CompressThreshold: defaultCompressThreshold,
		KeyedHash:         true,
		Logger:            zap.NewNop(),
	}
}

// Option configures a File at Open/OpenReliably time. This is a type alias
// for the same generic functional-option interface the rest of the module's
// ancestry uses for its encoder configs.
type Option = options.Option[*Config]

// WithCompression enables codec for newly written Data objects whose
// payload is at least threshold bytes long (§4.5 step 3c, §6.4). threshold is
// clamped up to minCompressThreshold if lower; codec must not be
// format.CompressionCodecNone.
func WithCompression(codec format.CompressionCodec, threshold int) Option {
	return options.New(func(c *Config) error {
		if threshold < minCompressThreshold {
			threshold = minCompressThreshold
		}
		c.Codec = codec
		c.CompressThreshold = threshold
		return nil
	})
}

// WithSealing turns on the forward-secure-sealing hook points (§6.5). This
// module never implements FSS itself; with sealing on, the no-op stubs in
// sealing.go are still called at the documented points so a caller-supplied
// FSS implementation (outside this module's scope) has somewhere to attach.
func WithSealing(enabled bool) Option {
	return options.NoError(func(c *Config) { c.Sealing = enabled })
}

// WithKeyedHash selects the keyed (true) or legacy non-keyed (false) content
// hash for the data table (§4.1, §9 open question: this module exposes it as
// an explicit open-time flag rather than reading the environment).
func WithKeyedHash(enabled bool) Option {
	return options.NoError(func(c *Config) { c.KeyedHash = enabled })
}

// WithMetrics overrides the size/free-space policy that would otherwise be
// derived from statvfs at open time (§4.8).
func WithMetrics(m metrics.Metrics) Option {
	return options.NoError(func(c *Config) { c.Metrics = &m })
}

// WithLogger attaches a zap logger for structured diagnostics: corruption
// tolerated during reads (bad entries skipped by next_entry) and
// offline-worker failures are logged through it rather than returned.
func WithLogger(log *zap.Logger) Option {
	return options.NoError(func(c *Config) {
		if log != nil {
			c.Logger = log
		}
	})
}

// WithTemplate carries a predecessor's seqnum_id lineage and tail sequence
// number into a newly created file (§4.7 "Rotate"). Open uses this on
// creation; Rotate builds one automatically from the file being rotated.
func WithTemplate(t Template) Option {
	return options.NoError(func(c *Config) { c.Template = &t })
}

func resolveConfig(opts []Option) (Config, error) {
	cfg := defaultConfig()
	if err := options.Apply(&cfg, opts...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
