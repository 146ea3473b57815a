package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/BioHazard786/Warpmeet/internal/call"
	"github.com/BioHazard786/Warpmeet/internal/config"
	"github.com/BioHazard786/Warpmeet/internal/media"
	"github.com/BioHazard786/Warpmeet/internal/names"
	"github.com/BioHazard786/Warpmeet/internal/rtc"
	"github.com/BioHazard786/Warpmeet/internal/signalclient"
	"github.com/BioHazard786/Warpmeet/internal/ui"
)

const connectTimeout = 15 * time.Second

var (
	flagName    string
	flagSTUN    string
	flagTimeout time.Duration
	flagAudio   string
	flagCamera  string
	flagScreen  string
	flagMuted   bool
	flagNoVideo bool
)

var joinCmd = &cobra.Command{
	Use:     "join <room-id|url>",
	Aliases: []string{"j"},
	Short:   "Join a group call",
	Long: `Join a group call and connect directly to everyone in the room.

Audio and video are played from files: Ogg/Opus for audio and IVF/VP8 for
the camera and the screen. Without an audio file the call sends silence.

Examples:
  warpmeet join ABC234
  warpmeet join https://warpmeet.example/r/ABC234 --name Alice
  warpmeet join ABC234 --audio voice.ogg --camera cam.ivf --screen slides.ivf`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID, err := parseRoomInput(args[0])
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		return joinCall(ctx, roomID)
	},
}

func joinCall(ctx context.Context, roomID string) error {
	cfg, err := loadConfig(config.Options{STUNServer: flagSTUN, NegotiationTimeout: flagTimeout})
	if err != nil {
		return err
	}
	logger := slog.Default().With("room_id", roomID)

	sources := mediaSources()
	if err := sources.Validate(); err != nil {
		return err
	}

	name := strings.TrimSpace(flagName)
	if name == "" {
		name = names.Guest()
	}

	local, err := media.NewLocal(uuid.NewString(), logger)
	if err != nil {
		return fmt.Errorf("create local tracks: %w", err)
	}
	defer local.Stop()

	fmt.Println()
	sp := ui.NewConnectionSpinner("Connecting to server...")
	sp.Start()

	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client := signalclient.NewClient(cfg.WebSocketURL, logger)
	if err := client.Connect(dialCtx); err != nil {
		sp.Stop()
		return fmt.Errorf("connect to server: %w", err)
	}
	defer client.Close()

	handler := signalclient.NewHandler(client)
	go handler.Start()

	c := call.New(call.Options{
		RoomID:             roomID,
		DisplayName:        name,
		AvatarRef:          names.Initials(name),
		Conn:               client,
		Events:             call.EventsFrom(handler),
		Media:              local,
		NewPeerConnection:  rtc.NewPeerConnectionFactory(cfg),
		NegotiationTimeout: cfg.NegotiationTimeout,
		Logger:             logger,
	})
	if err := c.Join(dialCtx); err != nil {
		sp.Stop()
		return err
	}
	sp.Stop()

	joined := c.Snapshot()
	fmt.Println(ui.JoinedView(joined.RoomID, cfg.GetRoomLink(joined.RoomID), len(joined.Peers)))
	fmt.Println()

	if err := local.Start(ctx, sources); err != nil {
		c.Leave()
		return fmt.Errorf("start media: %w", err)
	}
	applyStartState(c)

	runCtx, stopRun := context.WithCancel(ctx)
	defer stopRun()
	runErr := make(chan error, 1)
	go func() {
		err := c.Run(runCtx)
		stopRun()
		runErr <- err
	}()

	uiErr := ui.RunCall(runCtx, c)

	final := c.Snapshot()
	c.Leave()
	stopRun()
	err = <-runErr

	fmt.Println()
	ui.RenderCallSummary(summarize(final))

	switch {
	case uiErr != nil:
		return fmt.Errorf("call view: %w", uiErr)
	case errors.Is(err, call.ErrDisconnected):
		return err
	}
	return nil
}

func mediaSources() media.Sources {
	sources := media.Sources{Audio: media.Silence{}}
	if flagAudio != "" {
		sources.Audio = media.OggFile{Path: flagAudio, Loop: true}
	}
	if flagCamera != "" {
		sources.Camera = media.IVFFile{Path: flagCamera, Loop: true}
	}
	if flagScreen != "" {
		sources.Screen = media.IVFFile{Path: flagScreen, Loop: true}
	}
	return sources
}

// applyStartState honours --muted and --no-video once the call is live.
func applyStartState(c *call.Call) {
	if flagMuted {
		if err := c.ToggleAudio(); err != nil {
			ui.PrintWarning("could not mute: " + err.Error())
		}
	}
	if flagNoVideo || flagCamera == "" {
		if err := c.ToggleVideo(); err != nil {
			ui.PrintWarning("could not turn video off: " + err.Error())
		}
	}
}

func summarize(s call.Snapshot) ui.CallSummary {
	var received int64
	for _, p := range s.Peers {
		received += p.BytesIn
	}
	var d time.Duration
	if !s.JoinedAt.IsZero() {
		d = time.Since(s.JoinedAt)
	}
	return ui.CallSummary{
		RoomID:    s.RoomID,
		Duration:  d,
		PeersSeen: s.PeersSeen,
		Messages:  len(s.Chat),
		Received:  received,
	}
}

// parseRoomInput accepts a bare room code or a room link such as
// https://host/r/ABC234.
func parseRoomInput(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", errors.New("room ID cannot be empty")
	}
	if !strings.Contains(input, "://") && !strings.Contains(input, "/") {
		return input, nil
	}

	u, err := url.Parse(input)
	if err != nil {
		return "", fmt.Errorf("parse room URL: %w", err)
	}
	parts := strings.Split(strings.TrimSuffix(u.Path, "/"), "/")
	for i, part := range parts {
		if part == "r" && i+1 < len(parts) && parts[i+1] != "" {
			return parts[i+1], nil
		}
	}
	return "", fmt.Errorf("could not extract room ID from URL: %s", input)
}

func init() {
	rootCmd.AddCommand(joinCmd)

	joinCmd.Flags().StringVarP(&flagName, "name", "n", "", "display name (default: a random guest name)")
	joinCmd.Flags().StringVarP(&flagSTUN, "stun", "s", "", "STUN server (env: STUN_SERVER)")
	joinCmd.Flags().DurationVar(&flagTimeout, "timeout", 0, "give up on a peer that has not connected after this long (env: NEGOTIATION_TIMEOUT)")
	joinCmd.Flags().StringVar(&flagAudio, "audio", "", "Ogg/Opus file to send as microphone audio")
	joinCmd.Flags().StringVar(&flagCamera, "camera", "", "IVF/VP8 file to send as camera video")
	joinCmd.Flags().StringVar(&flagScreen, "screen", "", "IVF/VP8 file to send while screen sharing")
	joinCmd.Flags().BoolVar(&flagMuted, "muted", false, "join with the microphone muted")
	joinCmd.Flags().BoolVar(&flagNoVideo, "no-video", false, "join with the camera off")
}
