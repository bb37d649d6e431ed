package latency

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sarchlab/riversim/timing/cache"
	"github.com/sarchlab/riversim/timing/pipeline"
)

// TimingConfig holds the configuration of the timing core.
type TimingConfig struct {
	// ICacheHitLatency is the latency of an instruction line read that hits
	// the memory-side cache. Default: 1 cycle.
	ICacheHitLatency uint64 `json:"icache_hit_latency"`

	// ICacheMissLatency is the latency of an instruction line read that
	// misses. Default: 10 cycles.
	ICacheMissLatency uint64 `json:"icache_miss_latency"`

	// ICacheSize, ICacheAssociativity and ICacheBlockSize give the geometry
	// of the memory-side instruction cache. Default: 16KB, 4-way, 32B.
	ICacheSize          int `json:"icache_size"`
	ICacheAssociativity int `json:"icache_associativity"`
	ICacheBlockSize     int `json:"icache_block_size"`

	// DCacheHitLatency and DCacheMissLatency are recorded against data
	// accesses. Default: 1 and 10 cycles.
	DCacheHitLatency  uint64 `json:"dcache_hit_latency"`
	DCacheMissLatency uint64 `json:"dcache_miss_latency"`

	// Data cache geometry. Default: 16KB, 4-way, 32B.
	DCacheSize          int `json:"dcache_size"`
	DCacheAssociativity int `json:"dcache_associativity"`
	DCacheBlockSize     int `json:"dcache_block_size"`

	// MemoryLimit is the first address that faults on fetch. Zero disables
	// the check.
	MemoryLimit uint64 `json:"memory_limit"`

	// BTBSize is the number of branch target buffer entries. Default: 8.
	BTBSize int `json:"btb_size"`

	// PredictorDepth is the length of the predicted fetch sequence.
	// Default: 5.
	PredictorDepth int `json:"predictor_depth"`

	// ResetVector is the first fetched pc. Default: 0x10000.
	ResetVector uint64 `json:"reset_vector"`

	// InOrderWrites makes the register file drop writes whose tag is not
	// the next expected one. Default: true.
	InOrderWrites bool `json:"in_order_writes"`

	// AsyncReset selects the asynchronous reset discipline for every
	// clocked component. Default: false.
	AsyncReset bool `json:"async_reset"`

	// MaxCycles stops the core with an error. Zero means no limit.
	// Default: 100000000.
	MaxCycles uint64 `json:"max_cycles"`
}

// DefaultTimingConfig returns a TimingConfig with default values.
func DefaultTimingConfig() *TimingConfig {
	bp := pipeline.DefaultBranchPredictorConfig()
	ic := cache.DefaultL1IConfig()
	dc := cache.DefaultL1DConfig()

	return &TimingConfig{
		ICacheHitLatency:    ic.HitLatency,
		ICacheMissLatency:   ic.MissLatency,
		ICacheSize:          ic.Size,
		ICacheAssociativity: ic.Associativity,
		ICacheBlockSize:     ic.BlockSize,
		DCacheHitLatency:    dc.HitLatency,
		DCacheMissLatency:   dc.MissLatency,
		DCacheSize:          dc.Size,
		DCacheAssociativity: dc.Associativity,
		DCacheBlockSize:     dc.BlockSize,
		BTBSize:             bp.BTBSize,
		PredictorDepth:      bp.Depth,
		ResetVector:         0x10000,
		InOrderWrites:       true,
		MaxCycles:           100_000_000,
	}
}

// LoadConfig loads a TimingConfig from a JSON file. Fields missing from the
// file keep their default values.
func LoadConfig(path string) (*TimingConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read timing config file: %w", err)
	}

	config := DefaultTimingConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse timing config: %w", err)
	}

	return config, nil
}

// SaveConfig writes a TimingConfig to a JSON file.
func (c *TimingConfig) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize timing config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write timing config file: %w", err)
	}

	return nil
}

// Validate checks that the configuration describes a buildable core.
func (c *TimingConfig) Validate() error {
	if c.ICacheHitLatency == 0 || c.DCacheHitLatency == 0 {
		return fmt.Errorf("cache hit latencies must be > 0")
	}
	if c.ICacheMissLatency < c.ICacheHitLatency {
		return fmt.Errorf("icache_miss_latency must be >= icache_hit_latency")
	}
	if c.DCacheMissLatency < c.DCacheHitLatency {
		return fmt.Errorf("dcache_miss_latency must be >= dcache_hit_latency")
	}
	if err := validateGeometry("icache", c.ICacheSize, c.ICacheAssociativity, c.ICacheBlockSize); err != nil {
		return err
	}
	if err := validateGeometry("dcache", c.DCacheSize, c.DCacheAssociativity, c.DCacheBlockSize); err != nil {
		return err
	}
	if c.BTBSize <= 0 {
		return fmt.Errorf("btb_size must be > 0")
	}
	if c.PredictorDepth < 2 {
		return fmt.Errorf("predictor_depth must be >= 2")
	}
	if c.ResetVector&0x3 != 0 {
		return fmt.Errorf("reset_vector 0x%x is not 4-byte aligned", c.ResetVector)
	}
	if c.MemoryLimit != 0 && c.ResetVector >= c.MemoryLimit {
		return fmt.Errorf("reset_vector 0x%x is beyond memory_limit 0x%x", c.ResetVector, c.MemoryLimit)
	}
	return nil
}

func validateGeometry(name string, size, ways, block int) error {
	if block < cache.StubLineBytes || block&(block-1) != 0 {
		return fmt.Errorf("%s_block_size must be a power of two >= %d", name, cache.StubLineBytes)
	}
	if ways <= 0 {
		return fmt.Errorf("%s_associativity must be > 0", name)
	}
	if size <= 0 || size%(ways*block) != 0 {
		return fmt.Errorf("%s_size must be a positive multiple of associativity * block size", name)
	}
	return nil
}

// Clone returns a deep copy of the TimingConfig.
func (c *TimingConfig) Clone() *TimingConfig {
	clone := *c
	return &clone
}

// ICacheConfig returns the memory-side instruction cache configuration.
func (c *TimingConfig) ICacheConfig() cache.Config {
	return cache.Config{
		Size:          c.ICacheSize,
		Associativity: c.ICacheAssociativity,
		BlockSize:     c.ICacheBlockSize,
		HitLatency:    c.ICacheHitLatency,
		MissLatency:   c.ICacheMissLatency,
	}
}

// DCacheConfig returns the write-through data cache configuration.
func (c *TimingConfig) DCacheConfig() cache.Config {
	return cache.Config{
		Size:          c.DCacheSize,
		Associativity: c.DCacheAssociativity,
		BlockSize:     c.DCacheBlockSize,
		HitLatency:    c.DCacheHitLatency,
		MissLatency:   c.DCacheMissLatency,
		WriteThrough:  true,
	}
}

// BranchPredictorConfig returns the predictor configuration.
func (c *TimingConfig) BranchPredictorConfig() pipeline.BranchPredictorConfig {
	return pipeline.BranchPredictorConfig{
		BTBSize:    c.BTBSize,
		Depth:      c.PredictorDepth,
		AsyncReset: c.AsyncReset,
	}
}
