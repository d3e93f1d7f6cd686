package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/beamcast/beamcast/pkg/bus"
	"github.com/beamcast/beamcast/pkg/media"
	"github.com/beamcast/beamcast/pkg/playback"
	"github.com/beamcast/beamcast/pkg/protocol"
	"github.com/beamcast/beamcast/pkg/relay"
	"github.com/beamcast/beamcast/pkg/session"
)

// LocalSignalServer is the relay URL a `beamcast --serve` on this machine
// answers at.
const LocalSignalServer = "http://localhost:8080"

// Config holds runtime configuration.
type Config struct {
	ServeMode bool
	Port      int
	WatchRoom string
	Room      string
	SignalURL string
	RedisAddr string
	IVFPath   string
	LoopIVF   bool
	MediaPath string
	Quality   string
	FPS       int
	Codec     string
	OutPath   string
	Help      bool
}

func parseFlags() Config {
	config := Config{}
	var localMode bool

	flag.BoolVar(&config.ServeMode, "serve", false, "Run the signaling relay only")
	flag.BoolVar(&config.ServeMode, "s", false, "Run the signaling relay only (shorthand)")

	flag.IntVar(&config.Port, "port", 0, "Relay port (serve mode)")
	flag.IntVar(&config.Port, "p", 0, "Relay port (shorthand)")

	flag.StringVar(&config.WatchRoom, "watch", "", "Join a room as a viewer and record the stream")
	flag.StringVar(&config.WatchRoom, "w", "", "Join a room as a viewer (shorthand)")

	flag.StringVar(&config.Room, "room", "", "Host with a specific room code (default: generated)")

	flag.StringVar(&config.SignalURL, "signal", "", "Signal server URL (overrides saved default)")
	flag.BoolVar(&localMode, "local", false, "Use the local signal server ("+LocalSignalServer+")")
	flag.StringVar(&config.RedisAddr, "redis", "", "Use Redis pub/sub signaling at host:port instead of the relay")

	flag.StringVar(&config.IVFPath, "ivf", "", "Stream this IVF file as the live source")
	flag.BoolVar(&config.LoopIVF, "loop", false, "Loop the IVF source at EOF")
	flag.StringVar(&config.MediaPath, "media", "", "Broadcast this file in synchronized playback mode")

	flag.StringVar(&config.Quality, "quality", "", "Quality preset (low|medium|high|ultra|max)")
	flag.IntVar(&config.FPS, "fps", 0, "Capture framerate ceiling")
	flag.StringVar(&config.Codec, "codec", "", "Preferred codec (vp8|vp9|h264)")

	flag.StringVar(&config.OutPath, "out", "", "Watch mode: IVF recording destination")

	flag.BoolVar(&config.Help, "help", false, "Show help")
	flag.BoolVar(&config.Help, "h", false, "Show help (shorthand)")

	flag.Parse()

	if localMode {
		config.SignalURL = LocalSignalServer
	}
	return config
}

func printHelp() {
	fmt.Println(`Beamcast - screen sharing and synchronized playback for small rooms

Usage: beamcast [options]

By default beamcast hosts a room: it connects to the signal server, prints a
room code, and shares to every viewer that joins. Viewers run --watch.

Options:
  --watch, -w <room>     Join a room as a viewer and record the stream
  --room <code>          Host with a specific room code (default: generated)
  --signal <url>         Signal server URL (default: ` + LocalSignalServer + `)
  --local                Use the local signal server
  --redis <addr>         Signal over Redis pub/sub at addr instead of the relay
  --serve, -s            Run the signaling relay + media server only
  --port, -p <port>      Relay port (serve mode, default: 8080)
  --ivf <path>           Stream this IVF file as the live source
  --loop                 Loop the IVF source at EOF
  --media <path>         Broadcast this file in synchronized playback mode
  --quality <preset>     Quality preset: low, medium, high, ultra, max
  --fps <rate>           Capture framerate ceiling (default: 30)
  --codec <name>         Preferred codec: vp8, vp9, h264
  --out <path>           Watch mode: IVF recording destination
  --help, -h             Show help

Examples:
  beamcast --serve                     # run the relay on :8080
  beamcast --ivf demo.ivf              # host, streaming demo.ivf live
  beamcast --media movie.ivf           # host, synchronized file playback
  beamcast --watch BRAVE-FOX-42        # watch a room, recording to disk

Host TUI controls:
  s             start/stop sharing
  f             start/stop file broadcast (needs --media)
  space         play/pause (file mode)
  left/right    seek -/+ 5s (file mode)
  c             copy the watch command
  q, ctrl+c     quit`)
}

func main() {
	config := parseFlags()

	if config.Help {
		printHelp()
		return
	}

	if config.ServeMode {
		runRelay(config)
		return
	}

	applySettings(&config)

	if config.WatchRoom != "" {
		runWatch(config)
		return
	}
	runHost(config)
}

// applySettings fills flag gaps from the saved settings file, then persists
// explicit overrides as the new defaults.
func applySettings(config *Config) {
	sm, err := NewSettingsManager()
	if err != nil {
		log.Printf("settings unavailable: %v", err)
		seedDefaults(config)
		return
	}
	settings, err := sm.Load()
	if err != nil {
		log.Printf("ignoring unreadable settings: %v", err)
	}

	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if !set["quality"] {
		config.Quality = settings.Quality
	}
	if !set["fps"] {
		config.FPS = settings.FPS
	}
	if !set["codec"] {
		config.Codec = settings.Codec
	}
	if config.SignalURL == "" {
		config.SignalURL = settings.SignalURL
	}
	if config.SignalURL == "" {
		config.SignalURL = LocalSignalServer
	}

	if set["quality"] || set["fps"] || set["codec"] {
		settings.Quality = ParseQualityFlag(config.Quality).Name
		settings.FPS = NearestFPS(config.FPS)
		settings.Codec = string(ParseCodecFlag(config.Codec))
		if err := sm.Save(settings); err != nil {
			log.Printf("could not persist settings: %v", err)
		}
	}
}

func seedDefaults(config *Config) {
	defaults := DefaultSettings()
	if config.Quality == "" {
		config.Quality = defaults.Quality
	}
	if config.FPS == 0 {
		config.FPS = defaults.FPS
	}
	if config.Codec == "" {
		config.Codec = defaults.Codec
	}
	if config.SignalURL == "" {
		config.SignalURL = LocalSignalServer
	}
}

func runRelay(config Config) {
	relayCfg := relay.LoadConfig()
	if config.Port > 0 {
		relayCfg.Port = strconv.Itoa(config.Port)
	}
	if err := relay.NewServer(relayCfg).Run(); err != nil {
		log.Fatalf("relay error: %v", err)
	}
}

// dialBus picks the signaling backend: Redis pub/sub when requested, the
// websocket relay otherwise.
func dialBus(ctx context.Context, config Config, room string, self protocol.PeerID) (bus.Bus, error) {
	if config.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: config.RedisAddr})
		b, err := bus.NewRedis(ctx, client, room, self)
		if err != nil {
			client.Close()
			return nil, err
		}
		return b, nil
	}
	return bus.Dial(ctx, config.SignalURL, room, self)
}

func shortID() string {
	return uuid.New().String()[:8]
}

func resolveRoom(requested string) (string, error) {
	if requested == "" {
		return relay.GenerateRoomCode(), nil
	}
	code := relay.NormalizeRoomCode(requested)
	if !relay.ValidateRoomCode(code) {
		return "", fmt.Errorf("room code %q is not WORD-WORD-NN shaped", requested)
	}
	return code, nil
}

func runWatch(config Config) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	room, err := resolveRoom(config.WatchRoom)
	if err != nil {
		log.Fatal(err)
	}
	self := protocol.PeerID("viewer-" + shortID())

	b, err := dialBus(ctx, config, room, self)
	if err != nil {
		log.Fatalf("joining %s: %v", room, err)
	}
	defer b.Close()

	out := config.OutPath
	if out == "" {
		out = fmt.Sprintf("beamcast-%s.ivf", strings.ToLower(room))
	}
	sink := media.NewIVFSink(out)

	pipe := media.NewPipeline(media.Config{CodecOrder: CodecOrderFor(ParseCodecFlag(config.Codec))})
	pipe.SetRenderer(sink)

	clock := playback.NewClock()
	viewer := session.NewViewer(self, b, session.NewRegistry(session.DefaultConfiguration()), pipe, playback.NewReceiver(clock))

	fmt.Printf("Watching room %s as %s\n", room, self)
	fmt.Printf("Live streams are recorded to %s\n", out)
	fmt.Println("Press Ctrl+C to leave")

	go watchStatus(ctx, clock)
	viewer.Run(ctx)

	pipe.DetachRenderer()
	fmt.Println("Left the room")
}

// watchStatus prints playback progress while a file broadcast is running.
func watchStatus(ctx context.Context, clock *playback.Clock) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if clock.Source() == "" {
				continue
			}
			state := "paused"
			if clock.Playing() {
				state = "playing"
			}
			fmt.Printf("  %s %s at %s\n", state, clock.Source(), formatPosition(clock.Position()))
		}
	}
}

func formatPosition(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second))
	m := int(d.Minutes())
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d", m, s)
}

// captureProvider picks the live-source implementation. Without --ivf the
// share attempt surfaces a denial instead of silently streaming nothing.
func captureProvider(config Config) media.CaptureProvider {
	if config.IVFPath != "" {
		return &media.IVFProvider{Path: config.IVFPath, Loop: config.LoopIVF}
	}
	return &media.StaticProvider{Deny: "no capture source configured; start with --ivf FILE"}
}

func runHost(config Config) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	room, err := resolveRoom(config.Room)
	if err != nil {
		log.Fatal(err)
	}
	self := protocol.PeerID("host-" + shortID())

	b, err := dialBus(ctx, config, room, self)
	if err != nil {
		log.Fatalf("opening room %s: %v", room, err)
	}
	defer b.Close()

	preset := ParseQualityFlag(config.Quality)
	pipe := media.NewPipeline(media.Config{
		CodecOrder:     CodecOrderFor(ParseCodecFlag(config.Codec)),
		MaxBitrateKbps: preset.Bitrate,
	})

	clock := playback.NewClock()
	broadcaster := playback.NewBroadcaster(self, b, clock)

	host := session.NewHost(self, b, session.NewRegistry(session.DefaultConfiguration()), pipe, broadcaster)
	go host.Run(ctx)

	var uploader media.Uploader
	if config.RedisAddr == "" {
		uploader = &media.HTTPUploader{BaseURL: strings.TrimSuffix(config.SignalURL, "/")}
	}

	app := &hostApp{
		config: config,
		host:   host,
		room:   room,
		self:   self,
		provider: captureProvider(config),
		constraints: media.CaptureConstraints{
			MaxFPS:    config.FPS,
			MaxWidth:  preset.MaxWidth,
			MaxHeight: preset.MaxHeight,
		},
		quality:   preset,
		uploader:  uploader,
		mediaPath: config.MediaPath,
		ctx:       ctx,
	}

	if err := RunTUI(app); err != nil {
		log.Fatalf("TUI error: %v", err)
	}

	host.Stop(context.Background())
}
