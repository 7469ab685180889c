package pipeline

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/danmuck/scanlink/internal/csi"
	"github.com/danmuck/scanlink/internal/fragment"
	"github.com/danmuck/scanlink/internal/impair"
	"github.com/danmuck/scanlink/internal/latency"
	"github.com/danmuck/scanlink/internal/observability"
	"github.com/danmuck/scanlink/internal/ring"
)

var ErrNoFrameReady = errors.New("pipeline: ring produced no frame")

// Stage names in execution order.
const (
	StagePacketize  = "packetize"
	StageRing       = "ring"
	StageFragment   = "fragment"
	StageImpair     = "impair"
	StageReassemble = "reassemble"
)

var Stages = []string{StagePacketize, StageRing, StageFragment, StageImpair, StageReassemble}

// Config sizes the pipeline. Zero values take defaults.
type Config struct {
	VirtualChannel     uint8
	RingDepth          int
	MaxFragmentPayload int
	ReassemblyTimeout  time.Duration
}

func (c Config) withDefaults() Config {
	if c.RingDepth == 0 {
		c.RingDepth = ring.DefaultDepth
	}
	if c.MaxFragmentPayload == 0 {
		c.MaxFragmentPayload = fragment.DefaultMaxPayload
	}
	if c.ReassemblyTimeout == 0 {
		c.ReassemblyTimeout = fragment.DefaultTimeout
	}
	return c
}

// Snapshot summarizes the data entering or leaving one stage.
type Snapshot struct {
	Items int
	Bytes int
}

// Checkpoint records one stage invocation.
type Checkpoint struct {
	Stage   string
	Input   Snapshot
	Output  Snapshot
	Latency time.Duration
}

// Result is the outcome of pushing one source frame through the full
// path.
type Result struct {
	FrameID        uint32
	Delivered      bool
	Frame          *csi.Frame
	Partial        bool
	MissingLines   int
	CorruptedLines []int
	Incomplete     []fragment.Incomplete
	Checkpoints    []Checkpoint
}

// Pipeline composes the protocol stack into a single Run call. Run
// calls must be serialized by the caller: concurrent runs would
// interleave their packet streams in the shared buffer ring. The
// counter and summary accessors are safe for concurrent use, and stage
// latencies accumulate across runs.
type Pipeline struct {
	cfg     Config
	log     zerolog.Logger
	ringAsm *ring.Reassembler
	channel *impair.Channel
	rx      *fragment.Receiver

	frameID atomic.Uint32
	stages  map[string]*latency.Recorder
	network *latency.Recorder
}

// New builds a pipeline around the given impairment channel.
func New(cfg Config, channel *impair.Channel, logger zerolog.Logger) (*Pipeline, error) {
	cfg = cfg.withDefaults()
	ringAsm, err := ring.New(cfg.RingDepth)
	if err != nil {
		return nil, err
	}
	stages := make(map[string]*latency.Recorder, len(Stages))
	for _, name := range Stages {
		stages[name] = latency.NewRecorder()
	}
	return &Pipeline{
		cfg:     cfg,
		log:     logger,
		ringAsm: ringAsm,
		channel: channel,
		rx:      fragment.NewReceiver(cfg.ReassemblyTimeout),
		stages:  stages,
		network: latency.NewRecorder(),
	}, nil
}

// Run pushes one source frame through every stage and returns the final
// reassembled frame (or the incomplete reports when impairment consumed
// it) plus the ordered checkpoint list.
func (p *Pipeline) Run(src *csi.Frame, now time.Time) (Result, error) {
	result := Result{FrameID: p.frameID.Add(1)}

	// Packetize.
	begin := time.Now()
	packets, err := csi.Packetize(src, p.cfg.VirtualChannel)
	if err != nil {
		return Result{}, fmt.Errorf("pipeline: packetize: %w", err)
	}
	p.checkpoint(&result, StagePacketize, begin,
		Snapshot{Items: 1, Bytes: len(src.Pix)},
		Snapshot{Items: len(packets), Bytes: packetBytes(packets)},
	)

	// Buffer-ring reassembly.
	begin = time.Now()
	dropsBefore := p.ringAsm.Counters().Drops
	for _, pkt := range packets {
		if err := p.ringAsm.Ingest(pkt); err != nil {
			return Result{}, fmt.Errorf("pipeline: ring ingest: %w", err)
		}
	}
	handle, ok := p.ringAsm.NextReady()
	if !ok {
		return Result{}, ErrNoFrameReady
	}
	assembled := handle.Frame
	result.Partial = handle.Partial
	result.MissingLines = handle.Missing
	result.CorruptedLines = handle.Corrupted
	if err := handle.Release(); err != nil {
		p.log.Warn().Err(err).Uint32("frame_id", result.FrameID).Msg("ring slot reclaimed during send")
	}
	observability.RecordRingDrops(p.ringAsm.Counters().Drops - dropsBefore)
	p.checkpoint(&result, StageRing, begin,
		Snapshot{Items: len(packets), Bytes: packetBytes(packets)},
		Snapshot{Items: 1, Bytes: len(assembled.Pix)},
	)

	// Fragmentation.
	begin = time.Now()
	fragments, err := fragment.Split(assembled, result.FrameID, p.cfg.MaxFragmentPayload, now)
	if err != nil {
		return Result{}, fmt.Errorf("pipeline: split: %w", err)
	}
	p.checkpoint(&result, StageFragment, begin,
		Snapshot{Items: 1, Bytes: len(assembled.Pix)},
		Snapshot{Items: len(fragments), Bytes: fragmentBytes(fragments)},
	)

	// Impairment.
	begin = time.Now()
	before := p.channel.Counters()
	emissions := p.channel.Transmit(fragments)
	after := p.channel.Counters()
	observability.RecordImpairment(after.Lost-before.Lost, after.Corrupted-before.Corrupted)
	for _, e := range emissions {
		p.network.Record(e.Delay)
	}
	p.checkpoint(&result, StageImpair, begin,
		Snapshot{Items: len(fragments), Bytes: fragmentBytes(fragments)},
		Snapshot{Items: len(emissions), Bytes: emissionBytes(emissions)},
	)

	// Fragment reassembly. A frame that cannot complete is finalized by
	// an explicit timeout sweep, never held indefinitely.
	begin = time.Now()
	var out *csi.Frame
	for _, e := range emissions {
		completed, err := p.rx.AcceptFragment(e.Fragment, now)
		if err != nil {
			p.log.Debug().Err(err).Uint32("frame_id", result.FrameID).Msg("fragment rejected")
			continue
		}
		if completed != nil {
			out = completed
		}
	}
	if out == nil {
		result.Incomplete = p.rx.Sweep(now.Add(p.cfg.ReassemblyTimeout + time.Nanosecond))
	}
	outSnap := Snapshot{}
	if out != nil {
		outSnap = Snapshot{Items: 1, Bytes: len(out.Pix)}
	}
	p.checkpoint(&result, StageReassemble, begin,
		Snapshot{Items: len(emissions), Bytes: emissionBytes(emissions)},
		outSnap,
	)

	result.Frame = out
	result.Delivered = out != nil
	p.recordOutcome(result)
	return result, nil
}

func (p *Pipeline) recordOutcome(result Result) {
	switch {
	case !result.Delivered:
		observability.RecordFrame(observability.OutcomeIncomplete)
	case result.Partial:
		observability.RecordFrame(observability.OutcomePartial)
	default:
		observability.RecordFrame(observability.OutcomeDelivered)
	}
}

func (p *Pipeline) checkpoint(result *Result, stage string, begin time.Time, in, out Snapshot) {
	elapsed := time.Since(begin)
	p.stages[stage].Record(elapsed)
	observability.RecordStage(stage, elapsed)
	result.Checkpoints = append(result.Checkpoints, Checkpoint{
		Stage:   stage,
		Input:   in,
		Output:  out,
		Latency: elapsed,
	})
}

// Sweep runs one staleness pass over the fragment receiver, for callers
// polling between frames.
func (p *Pipeline) Sweep(now time.Time) []fragment.Incomplete {
	return p.rx.Sweep(now)
}

// StageSummary returns the accumulated latency summary for one stage.
func (p *Pipeline) StageSummary(stage string) latency.Summary {
	rec, ok := p.stages[stage]
	if !ok {
		return latency.Summary{}
	}
	return rec.Summary()
}

// NetworkSummary returns the summary of simulated delivery delays
// sampled by the impairment channel.
func (p *Pipeline) NetworkSummary() latency.Summary {
	return p.network.Summary()
}

// RingCounters exposes the buffer-ring counters.
func (p *Pipeline) RingCounters() ring.Counters {
	return p.ringAsm.Counters()
}

// ReceiverCounters exposes the fragment-receiver counters.
func (p *Pipeline) ReceiverCounters() fragment.Counters {
	return p.rx.Counters()
}

func packetBytes(packets []csi.Packet) int {
	total := 0
	for _, pkt := range packets {
		total += len(pkt.Payload)
	}
	return total
}

func fragmentBytes(fragments []fragment.Fragment) int {
	total := 0
	for _, f := range fragments {
		total += len(f.Payload)
	}
	return total
}

func emissionBytes(emissions []impair.Emission) int {
	total := 0
	for _, e := range emissions {
		total += len(e.Fragment.Payload)
	}
	return total
}
