package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/danmuck/scanlink/internal/command"
	"github.com/danmuck/scanlink/internal/config"
	"github.com/danmuck/scanlink/internal/impair"
	"github.com/danmuck/scanlink/internal/keys"
	"github.com/danmuck/scanlink/internal/observability"
	"github.com/danmuck/scanlink/internal/pipeline"
	"github.com/danmuck/scanlink/internal/source"
	"github.com/danmuck/scanlink/internal/tlv"
	"github.com/danmuck/scanlink/internal/transport"
)

// GET_STATUS response fields.
const (
	fieldState      uint16 = 1
	fieldDelivered  uint16 = 2
	fieldIncomplete uint16 = 3
	fieldRingDrops  uint16 = 4
)

// SET_CONFIG request fields. Rates travel as parts-per-million so the
// payload stays integer-only.
const (
	fieldLossPPM       uint16 = 1
	fieldReorderPPM    uint16 = 2
	fieldCorruptionPPM uint16 = 3
)

type scanState struct {
	scanning   atomic.Bool
	delivered  atomic.Uint64
	incomplete atomic.Uint64
}

func main() {
	configPath := flag.String("config", "sim.toml", "simulator config path")
	frames := flag.Int("frames", 0, "override configured frame count")
	flag.Parse()

	logger := observability.InitLogger("scanlink")
	observability.RegisterMetrics()

	cfg, err := config.LoadSimConfig(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("config")
	}
	if *frames > 0 {
		cfg.Frame.Count = *frames
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("simulation failed")
	}
}

func run(ctx context.Context, cfg config.SimConfig, logger zerolog.Logger) error {
	secret, err := keys.NewStaticSecret([]byte(cfg.Command.Secret))
	if err != nil {
		return err
	}
	key, err := secret.ChannelKey("command")
	if err != nil {
		return err
	}

	channel := impair.NewChannel(impair.Rates{
		Loss:       cfg.Impairment.LossRate,
		Reorder:    cfg.Impairment.ReorderRate,
		Corruption: cfg.Impairment.CorruptionRate,
		MinDelay:   cfg.Impairment.MinDelay(),
		MaxDelay:   cfg.Impairment.MaxDelay(),
	}, cfg.Impairment.Seed)

	pipe, err := pipeline.New(pipeline.Config{
		VirtualChannel:     cfg.Frame.VirtualChannel,
		RingDepth:          cfg.Ring.Depth,
		MaxFragmentPayload: cfg.Fragment.MaxPayload,
		ReassemblyTimeout:  cfg.Fragment.Timeout(),
	}, channel, logger)
	if err != nil {
		return err
	}

	state := &scanState{}
	endpoint, err := bridgeEndpoint(key, cfg.Command.MaxPeers, state, channel, pipe)
	if err != nil {
		return err
	}

	// Control channel: host workstation <-> bridge controller over an
	// in-memory datagram pair.
	link := transport.NewLoopback()
	go serveCommands(ctx, link.Endpoint("bridge"), endpoint, logger)
	host := link.Endpoint("host")

	requester, err := command.NewRequester(key)
	if err != nil {
		return err
	}
	if _, err := exchange(ctx, host, requester, key, command.CmdStartScan, nil); err != nil {
		return err
	}
	logger.Info().Int("frames", cfg.Frame.Count).
		Int("rows", cfg.Frame.Rows).Int("cols", cfg.Frame.Cols).
		Float64("loss", cfg.Impairment.LossRate).
		Msg("scan started")

	src, err := source.NewPattern(cfg.Frame.Rows, cfg.Frame.Cols, cfg.Frame.Count)
	if err != nil {
		return err
	}
	begin := time.Now()
	for i := 0; i < cfg.Frame.Count; i++ {
		if err := ctx.Err(); err != nil {
			logger.Warn().Int("frames", i).Msg("scan interrupted")
			break
		}
		frame, err := src.Next()
		if err != nil {
			return err
		}
		result, err := pipe.Run(frame, time.Now())
		if err != nil {
			return err
		}
		if result.Delivered {
			state.delivered.Add(1)
		} else {
			state.incomplete.Add(1)
		}
		if (i+1)%100 == 0 {
			logger.Info().Int("frames", i+1).
				Uint64("delivered", state.delivered.Load()).
				Uint64("incomplete", state.incomplete.Load()).
				Msg("progress")
		}
	}
	state.scanning.Store(false)

	status, err := exchange(ctx, host, requester, key, command.CmdGetStatus, nil)
	if err != nil {
		return err
	}
	logStatus(logger, status)
	if _, err := exchange(ctx, host, requester, key, command.CmdStopScan, nil); err != nil {
		return err
	}

	report(logger, pipe, channel, time.Since(begin))
	return nil
}

func bridgeEndpoint(key []byte, maxPeers int, state *scanState, channel *impair.Channel, pipe *pipeline.Pipeline) (*command.Endpoint, error) {
	endpoint, err := command.NewEndpoint(key, maxPeers)
	if err != nil {
		return nil, err
	}
	endpoint.Handle(command.CmdStartScan, func(command.Command, string) (uint16, []byte) {
		if !state.scanning.CompareAndSwap(false, true) {
			return command.StatusRejected, nil
		}
		return command.StatusOK, nil
	})
	endpoint.Handle(command.CmdStopScan, func(command.Command, string) (uint16, []byte) {
		state.scanning.Store(false)
		return command.StatusOK, nil
	})
	endpoint.Handle(command.CmdGetStatus, func(command.Command, string) (uint16, []byte) {
		stateName := "idle"
		if state.scanning.Load() {
			stateName = "streaming"
		}
		return command.StatusOK, tlv.EncodeFields([]tlv.Field{
			tlv.StringField(fieldState, stateName),
			tlv.U64Field(fieldDelivered, state.delivered.Load()),
			tlv.U64Field(fieldIncomplete, state.incomplete.Load()),
			tlv.U64Field(fieldRingDrops, pipe.RingCounters().Drops),
		})
	})
	endpoint.Handle(command.CmdSetConfig, func(cmd command.Command, _ string) (uint16, []byte) {
		fields, err := tlv.DecodeFields(cmd.Payload)
		if err != nil {
			return command.StatusBadPayload, nil
		}
		rates := channel.Rates()
		for _, bind := range []struct {
			id   uint16
			rate *float64
		}{
			{fieldLossPPM, &rates.Loss},
			{fieldReorderPPM, &rates.Reorder},
			{fieldCorruptionPPM, &rates.Corruption},
		} {
			f, ok := tlv.GetField(fields, bind.id)
			if !ok {
				continue
			}
			ppm, err := tlv.U32FromBytes(f.Value)
			if err != nil || ppm > 1_000_000 {
				return command.StatusBadPayload, nil
			}
			*bind.rate = float64(ppm) / 1e6
		}
		channel.SetRates(rates)
		return command.StatusOK, nil
	})
	return endpoint, nil
}

func serveCommands(ctx context.Context, ep *transport.LoopbackEndpoint, endpoint *command.Endpoint, logger zerolog.Logger) {
	for {
		from, datagram, err := ep.Receive(ctx)
		if err != nil {
			return
		}
		resp := endpoint.Process(datagram, from)
		if resp == nil {
			continue
		}
		if err := ep.Send(from, resp); err != nil {
			logger.Warn().Err(err).Str("peer", from).Msg("response send failed")
		}
	}
}

func exchange(ctx context.Context, ep *transport.LoopbackEndpoint, requester *command.Requester, key []byte, commandID uint16, payload []byte) (command.Response, error) {
	datagram, seq, err := requester.Next(commandID, payload)
	if err != nil {
		return command.Response{}, err
	}
	if err := ep.Send("bridge", datagram); err != nil {
		return command.Response{}, err
	}
	_, buf, err := ep.Receive(ctx)
	if err != nil {
		return command.Response{}, err
	}
	resp, err := command.DecodeResponse(buf, key)
	if err != nil {
		return command.Response{}, err
	}
	if resp.Sequence != seq {
		return command.Response{}, fmt.Errorf("response for sequence %d, sent %d", resp.Sequence, seq)
	}
	if resp.Status != command.StatusOK {
		return command.Response{}, fmt.Errorf("command %#x rejected with status %#x", commandID, resp.Status)
	}
	return resp, nil
}

func logStatus(logger zerolog.Logger, resp command.Response) {
	fields, err := tlv.DecodeFields(resp.Payload)
	if err != nil {
		logger.Warn().Err(err).Msg("status payload undecodable")
		return
	}
	event := logger.Info()
	if f, ok := tlv.GetField(fields, fieldState); ok {
		event = event.Str("state", string(f.Value))
	}
	for _, bind := range []struct {
		name string
		id   uint16
	}{
		{"delivered", fieldDelivered},
		{"incomplete", fieldIncomplete},
		{"ring_drops", fieldRingDrops},
	} {
		if f, ok := tlv.GetField(fields, bind.id); ok {
			if v, err := tlv.U64FromBytes(f.Value); err == nil {
				event = event.Uint64(bind.name, v)
			}
		}
	}
	event.Msg("bridge status")
}

func report(logger zerolog.Logger, pipe *pipeline.Pipeline, channel *impair.Channel, elapsed time.Duration) {
	for _, stage := range pipeline.Stages {
		s := pipe.StageSummary(stage)
		logger.Info().Str("stage", stage).
			Dur("p50", s.P50).Dur("p95", s.P95).Dur("p99", s.P99).
			Msg("stage latency")
	}
	net := pipe.NetworkSummary()
	logger.Info().Dur("p50", net.P50).Dur("p95", net.P95).Dur("p99", net.P99).
		Msg("simulated network delay")

	impairCtr := channel.Counters()
	rxCtr := pipe.ReceiverCounters()
	logger.Info().
		Uint64("sent", impairCtr.Sent).
		Uint64("lost", impairCtr.Lost).
		Uint64("corrupted", impairCtr.Corrupted).
		Uint64("reordered", impairCtr.Reordered).
		Uint64("rx_completed", rxCtr.Completed).
		Uint64("rx_evicted", rxCtr.Evicted).
		Uint64("ring_drops", pipe.RingCounters().Drops).
		Dur("elapsed", elapsed).
		Msg("scan complete")
}
