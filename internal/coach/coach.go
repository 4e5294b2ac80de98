// Package coach assembles the full pipeline: frames in, debounced state in
// the middle, advice and the occasional scout keypress out.
package coach

import (
	"context"
	"fmt"
	"image"
	"strconv"
	"strings"
	"time"

	"github.com/zkH2O/tftcoach/internal/act"
	"github.com/zkH2O/tftcoach/internal/audio"
	"github.com/zkH2O/tftcoach/internal/capture"
	"github.com/zkH2O/tftcoach/internal/config"
	"github.com/zkH2O/tftcoach/internal/detect"
	"github.com/zkH2O/tftcoach/internal/identify"
	"github.com/zkH2O/tftcoach/internal/live"
	"github.com/zkH2O/tftcoach/internal/logging"
	"github.com/zkH2O/tftcoach/internal/reason"
	"github.com/zkH2O/tftcoach/internal/retrieval"
	"github.com/zkH2O/tftcoach/internal/sched"
	"github.com/zkH2O/tftcoach/internal/state"
)

// Coach owns every component of the running pipeline.
type Coach struct {
	cfg *config.Config

	source   *capture.Source
	detector *detect.Detector
	holder   *identify.Holder
	resolver *identify.Resolver
	layout   state.Layout
	agg      *state.Aggregator
	emitter  *act.Emitter
	gateway  *reason.Gateway

	cache   *identify.Cache
	watcher *identify.CorpusWatcher
	speaker *audio.Speaker
	poller  *live.Poller
}

// New wires a coach from config. Nothing starts running until Run.
func New(ctx context.Context, cfg *config.Config) (*Coach, error) {
	c := &Coach{
		cfg:    cfg,
		layout: state.DefaultLayout(),
		agg:    state.NewAggregator(cfg.State.DebounceFrames),
	}

	grabber, err := capture.NewExecGrabber(cfg.Capture.GrabCommand, config.Duration(cfg.Capture.GrabTimeout, 3*time.Second))
	if err != nil {
		return nil, fmt.Errorf("capture setup: %w", err)
	}
	c.source = capture.NewSource(grabber, config.Duration(cfg.Capture.Period, time.Second), cfg.Capture.MaxConsecutiveFailures)

	model := detect.NewHTTPModel(cfg.Detector.Endpoint, config.Duration(cfg.Detector.Timeout, 10*time.Second))
	c.detector = detect.New(model, cfg.Detector.ConfidenceFloor)

	if cfg.Identify.CachePath != "" {
		c.cache, err = identify.OpenCache(cfg.Identify.CachePath)
		if err != nil {
			return nil, fmt.Errorf("manifest cache: %w", err)
		}
	}
	c.holder = identify.NewHolder(nil)
	if err := c.holder.Load(ctx, cfg.Identify.CorpusDir, cfg.Identify.SetTag, c.cache); err != nil {
		return nil, fmt.Errorf("manifest load: %w", err)
	}
	c.resolver = identify.NewResolver(c.holder, cfg.Identify.MatchThreshold)

	if cfg.Identify.WatchCorpus {
		c.watcher, err = identify.NewCorpusWatcher(cfg.Identify.CorpusDir, cfg.Identify.SetTag, func(ctx context.Context) error {
			return c.holder.Rebuild(ctx, cfg.Identify.CorpusDir, cfg.Identify.SetTag, c.cache)
		})
		if err != nil {
			return nil, fmt.Errorf("corpus watcher: %w", err)
		}
	}

	c.emitter = act.NewEmitter(
		&act.ExecDispatcher{
			Argv:    cfg.Scout.DispatchCommand,
			Timeout: config.Duration(cfg.Scout.DispatchTimeout, 2*time.Second),
		},
		act.Jitter{
			Mean:   config.Duration(cfg.Scout.DelayMean, 200*time.Millisecond),
			Stddev: config.Duration(cfg.Scout.DelayStddev, 50*time.Millisecond),
		},
		time.Now().UnixNano(),
	)

	client, err := reason.NewClient(ctx, cfg.Reasoning)
	if err != nil {
		return nil, fmt.Errorf("reasoning setup: %w", err)
	}
	var retriever *retrieval.Client
	if cfg.Retrieval.Enabled {
		retriever = retrieval.NewClient(cfg.Retrieval.BaseURL, cfg.Retrieval.TopK, config.Duration(cfg.Retrieval.Timeout, 10*time.Second))
	}
	c.gateway = reason.NewGateway(client, retriever, config.Duration(cfg.Reasoning.Timeout, 60*time.Second))

	if cfg.Audio.Enabled {
		c.speaker = audio.NewSpeaker(cfg.Audio.BaseURL, cfg.Audio.Voice, config.Duration(cfg.Audio.Timeout, 30*time.Second))
	}
	if cfg.Live.Enabled {
		lc := live.NewClient(cfg.Live.BaseURL, config.Duration(cfg.Live.Timeout, 2*time.Second))
		c.poller = live.NewPoller(lc, c.agg, config.Duration(cfg.Live.Period, 5*time.Second))
	}

	return c, nil
}

// Snapshot returns the latest published game state.
func (c *Coach) Snapshot() *state.Snapshot {
	return c.agg.Current()
}

// Run drives the pipeline until ctx is cancelled or the capture source is
// exhausted.
func (c *Coach) Run(ctx context.Context) error {
	logging.Boot("coach starting: set=%s detector=%s", c.cfg.Identify.SetTag, c.cfg.Detector.Endpoint)

	if err := c.source.Start(ctx); err != nil {
		return fmt.Errorf("capture start: %w", err)
	}
	defer c.source.Stop()

	if c.watcher != nil {
		if err := c.watcher.Start(ctx); err != nil {
			return fmt.Errorf("corpus watcher start: %w", err)
		}
		defer c.watcher.Stop()
	}
	if c.poller != nil {
		c.poller.Start(ctx)
		defer c.poller.Stop()
	}
	if c.cache != nil {
		defer c.cache.Close()
	}

	scoutPeriod := time.Duration(0)
	if c.cfg.Scout.Enabled {
		scoutPeriod = config.Duration(c.cfg.Scout.Period, 30*time.Second)
	}

	scheduler := sched.New(c.agg, sched.Hooks{
		Frame:   c.frameTick,
		Scout:   c.scout,
		Advise:  c.gateway.Advise,
		Deliver: c.deliver,
	}, scoutPeriod)

	return scheduler.Run(ctx)
}

// frameTick is one perception iteration: next frame, detect, resolve, fold.
func (c *Coach) frameTick(ctx context.Context) error {
	res, err := c.source.Next(ctx)
	if err != nil {
		return err
	}
	if res.Err != nil {
		return res.Err
	}

	detections, err := c.detector.Detect(ctx, res.Frame)
	if err != nil {
		return err
	}

	obs := BuildObservation(res.Frame.Image, detections, c.resolver, c.layout)
	c.agg.Observe(res.Frame.Seq, obs)
	return nil
}

// scout fires the single permitted input event. Overlap suppression inside
// the emitter is surfaced as a skipped tick, not an error.
func (c *Coach) scout(ctx context.Context) error {
	err := c.emitter.Emit(ctx, c.actionName())
	if err == act.ErrSuppressed {
		return nil
	}
	return err
}

// actionName is a log label only; the dispatch argv is executed as
// configured, without the label as an argument.
func (c *Coach) actionName() string {
	if len(c.cfg.Scout.DispatchCommand) > 0 {
		return c.cfg.Scout.DispatchCommand[len(c.cfg.Scout.DispatchCommand)-1]
	}
	return "scout"
}

// deliver routes advice to the speaker, falling back to the log when audio
// is disabled or busy.
func (c *Coach) deliver(ctx context.Context, advice *reason.Advice) error {
	if c.speaker != nil {
		err := c.speaker.Say(ctx, advice.Text)
		if err == nil {
			return nil
		}
		if err != audio.ErrBusy {
			return err
		}
	}
	logging.Reasoning("advice (v%d): %s", advice.SnapshotVersion, advice.Text)
	return nil
}

// BuildObservation converts one frame's detections into aggregator field
// values. Unknown identities contribute nothing: for the debounce an
// unrecognized icon is the same as an empty slot.
func BuildObservation(img image.Image, detections []detect.Detection, resolver *identify.Resolver, layout state.Layout) state.Observation {
	obs := state.Observation{}
	for _, det := range detections {
		if det.Class.IsText() {
			applyText(obs, det)
			continue
		}

		slot, ok := layout.SlotFor(det.Box)
		if !ok {
			continue
		}
		resolved := resolver.Resolve(identify.Crop(img, det.Box), det.Box, det.FrameSeq)
		if resolved.IsUnknown() {
			logging.IdentifyDebug("frame seq=%d: unknown %s at %s (best %.3f)", det.FrameSeq, det.Class, slot, resolved.Confidence)
			continue
		}

		switch det.Class {
		case detect.ClassChampionIcon, detect.ClassShopCard:
			obs[slot] = resolved.EntityID
		case detect.ClassItemIcon:
			obs["item/"+slot] = resolved.EntityID
		}
	}
	return obs
}

// applyText folds an OCR detection into the observation. Opponent entries
// arrive as "Name 42"; the trailing integer is the health.
func applyText(obs state.Observation, det detect.Detection) {
	text := strings.TrimSpace(det.Text)
	if text == "" {
		return
	}
	switch det.Class {
	case detect.ClassGoldText:
		if _, err := strconv.Atoi(text); err == nil {
			obs["gold"] = text
		}
	case detect.ClassStageText:
		obs["stage"] = text
	case detect.ClassOpponentText:
		i := strings.LastIndexAny(text, " \t")
		if i < 0 {
			return
		}
		name := strings.TrimSpace(text[:i])
		health := strings.TrimSpace(text[i+1:])
		if name == "" {
			return
		}
		if _, err := strconv.Atoi(health); err != nil {
			return
		}
		obs["opp/"+name] = health
	}
}
