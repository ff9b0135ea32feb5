package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"waffle-chat/internal/api"
	"waffle-chat/internal/models"
	"waffle-chat/internal/newsletter"
	"waffle-chat/internal/render"
	"waffle-chat/internal/roomsync"
)

func (a *app) roomsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rooms",
		Short: "List the rooms you belong to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openSession(false)
			if err != nil {
				return err
			}
			defer s.close()

			rooms, err := s.sync.FetchRooms(cmd.Context())
			if err != nil {
				return err
			}
			for _, room := range rooms {
				fmt.Fprintln(cmd.OutOrStdout(), room)
			}
			return nil
		},
	}
}

func (a *app) watchCmd() *cobra.Command {
	var room string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow a room and send each line typed on stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s, err := a.openSession(true)
			if err != nil {
				return err
			}
			defer s.close()

			out := cmd.OutOrStdout()
			if err := s.sync.JoinRoom(ctx, room); err != nil {
				return err
			}
			if current := s.sync.CurrentRoom(); current != room {
				fmt.Fprintf(out, "no access to %s, showing %s\n", room, current)
			}

			tr := render.NewTranscript(out, s.sync.IsMine, s.videos)
			seen := map[string]bool{}
			show := func() {
				var fresh []models.Message
				for _, msg := range s.sync.Messages(s.sync.CurrentRoom()) {
					if !seen[msg.ID] {
						seen[msg.ID] = true
						fresh = append(fresh, msg)
					}
				}
				_ = tr.Render(ctx, fresh)
			}
			show()

			go readLines(ctx, cmd, s)
			go func() { _ = s.sync.Run(ctx) }()

			for {
				select {
				case <-ctx.Done():
					return nil
				case ev := <-s.sync.Events():
					switch ev.Type {
					case roomsync.EventMessagesUpdated:
						if ev.Room == s.sync.CurrentRoom() {
							show()
						}
					case roomsync.EventAccessDenied:
						fmt.Fprintf(out, "access to %s was revoked, back in %s\n", ev.Room, s.sync.CurrentRoom())
						clear(seen)
						show()
					case roomsync.EventSendFailed:
						fmt.Fprintf(out, "message not sent: %v\n", ev.Err)
					}
				}
			}
		},
	}
	cmd.Flags().StringVar(&room, "room", models.DefaultRoom, "room to watch")
	return cmd
}

func readLines(ctx context.Context, cmd *cobra.Command, s *session) {
	scanner := bufio.NewScanner(cmd.InOrStdin())
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		if text := strings.TrimSpace(scanner.Text()); text != "" {
			s.sync.SendMessage(ctx, text, "")
		}
	}
}

func (a *app) sendCmd() *cobra.Command {
	var room string
	cmd := &cobra.Command{
		Use:   "send <text>...",
		Short: "Send one message to a room",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openSession(false)
			if err != nil {
				return err
			}
			defer s.close()

			id := s.sync.SendMessage(cmd.Context(), strings.Join(args, " "), room)
			s.sync.Wait()
			if err := s.sendFailure(); err != nil {
				return explain(err, room)
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	cmd.Flags().StringVar(&room, "room", models.DefaultRoom, "destination room")
	return cmd
}

func (a *app) createRoomCmd() *cobra.Command {
	var members []string
	cmd := &cobra.Command{
		Use:   "create-room <name>",
		Short: "Create a room; you are always a member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openSession(false)
			if err != nil {
				return err
			}
			defer s.close()

			set, err := s.sync.CreateRoom(cmd.Context(), args[0], members)
			if err != nil {
				return explain(err, args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s: %s\n", args[0], strings.Join(set, ", "))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&members, "member", nil, "member email (repeatable)")
	return cmd
}

func (a *app) editMembersCmd() *cobra.Command {
	var members []string
	cmd := &cobra.Command{
		Use:   "edit-members <room>",
		Short: "Replace the member list of a room you belong to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openSession(false)
			if err != nil {
				return err
			}
			defer s.close()

			set, err := s.sync.EditMembers(cmd.Context(), args[0], members)
			if err != nil {
				return explain(err, args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], strings.Join(set, ", "))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&members, "member", nil, "member email (repeatable)")
	return cmd
}

func (a *app) membersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "members <room>",
		Short: "List the members of a room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openSession(false)
			if err != nil {
				return err
			}
			defer s.close()

			members, err := s.sync.RoomMembers(cmd.Context(), args[0])
			if err != nil {
				return explain(err, args[0])
			}
			for _, m := range members {
				fmt.Fprintln(cmd.OutOrStdout(), m)
			}
			return nil
		},
	}
}

func (a *app) clearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear <room>",
		Short: "Delete every message of a room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openSession(false)
			if err != nil {
				return err
			}
			defer s.close()

			if err := s.sync.ClearRoom(cmd.Context(), args[0]); err != nil {
				return explain(err, args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared %s\n", args[0])
			return nil
		},
	}
}

func (a *app) subscribeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "subscribe <email>",
		Short: "Sign up for the Waffle newsletter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newsletter.NewClient(a.cfg.Newsletter.URL, a.cfg.Newsletter.APIKey)
			msg, err := client.Subscribe(cmd.Context(), args[0])
			if err != nil {
				var relayErr *newsletter.RelayError
				if errors.As(err, &relayErr) {
					return errors.New(relayErr.Message)
				}
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}
}

// explain turns backend refusals into short user-facing errors.
func explain(err error, room string) error {
	switch {
	case errors.Is(err, roomsync.ErrNotMember), errors.Is(err, api.ErrForbidden):
		return fmt.Errorf("you are not a member of %s", room)
	case errors.Is(err, api.ErrNotFound):
		return fmt.Errorf("room %s does not exist", room)
	case errors.Is(err, roomsync.ErrEmptyRoomName):
		return errors.New("room name is empty")
	}
	return err
}
