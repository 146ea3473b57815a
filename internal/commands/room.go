package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/Warpmeet/internal/config"
	"github.com/BioHazard786/Warpmeet/internal/ui"
)

var checkCmd = &cobra.Command{
	Use:   "check <room-id|url>",
	Short: "Show whether a room is open and how many people are in it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID, err := parseRoomInput(args[0])
		if err != nil {
			return err
		}
		cfg, err := loadConfig(config.Options{})
		if err != nil {
			return err
		}

		status, err := newAPIClient(cfg.APIURL).roomStatus(cmd.Context(), roomID)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.RoomStatusView(status.RoomID, status.Exists, status.ParticipantCount))
		return nil
	},
}

var newCmd = &cobra.Command{
	Use:   "new",
	Short: "Reserve a fresh room code to share",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(config.Options{})
		if err != nil {
			return err
		}

		roomID, err := newAPIClient(cfg.APIURL).newRoom(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.RoomInfoView(roomID, cfg.GetRoomLink(roomID)))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(newCmd)
}
