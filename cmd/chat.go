package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/habedi/gigsync/client"
	"github.com/habedi/gigsync/pkg/validation"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const quitCommand = "/quit"

func chatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to other members",
	}

	cmd.AddCommand(
		chatRoomsCmd(),
		chatMessagesCmd(),
		chatReadCmd(),
		chatUnreadCmd(),
		chatOpenCmd(),
	)

	return cmd
}

func chatRoomsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rooms",
		Short: "List your chat rooms",
		Run: func(cmd *cobra.Command, args []string) {
			withSession(cmd, func(ctx context.Context, s *session) error {
				rooms, err := s.client.ListChatRooms(ctx)
				if err != nil {
					return err
				}
				if len(rooms) == 0 {
					cmd.Println("No chat rooms yet. Use 'gigsync chat open <user-id>' to start one.")
					return nil
				}

				table := newTable(cmd.OutOrStdout(), []string{"Room", "With", "User ID", "Unread", "Last message", "At"})
				for _, r := range rooms {
					table.Append([]string{
						r.RoomID,
						r.OtherUserNickName,
						strconv.FormatInt(r.OtherUserID, 10),
						strconv.Itoa(r.UnreadCount),
						oneLine(r.LastMessage, 40),
						r.LastMessageTime,
					})
				}
				table.Render()
				return nil
			})
		},
	}
}

func chatMessagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "messages <room-id>",
		Short: "Show the messages of a chat room",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			roomID := args[0]
			if err := validation.ValidateNonEmptyString("room ID", roomID); err != nil {
				printError(cmd, invalid(err))
				return
			}
			withSession(cmd, func(ctx context.Context, s *session) error {
				messages, err := s.client.ListRoomMessages(ctx, roomID)
				if err != nil {
					return err
				}
				if len(messages) == 0 {
					cmd.Println("No messages in this room.")
					return nil
				}
				for _, m := range messages {
					cmd.Println(formatChatMessage(m))
				}
				return nil
			})
		},
	}
}

func chatReadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read <room-id>",
		Short: "Mark every message in a room as read",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			roomID := args[0]
			if err := validation.ValidateNonEmptyString("room ID", roomID); err != nil {
				printError(cmd, invalid(err))
				return
			}
			withSession(cmd, func(ctx context.Context, s *session) error {
				if err := s.client.MarkRoomRead(ctx, roomID); err != nil {
					return err
				}
				cmd.Printf("Marked room %s as read.\n", roomID)
				return nil
			})
		},
	}
}

// chatUnreadCmd flags a room as having a new message for a participant who was not connected.
func chatUnreadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unread <room-id> <user-id>",
		Short: "Bump the unread counter of a room for a member",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			roomID := args[0]
			if err := validation.ValidateNonEmptyString("room ID", roomID); err != nil {
				printError(cmd, invalid(err))
				return
			}
			userID, err := parseID("user", args[1])
			if err != nil {
				printError(cmd, err)
				return
			}
			withSession(cmd, func(ctx context.Context, s *session) error {
				if err := s.client.IncrementUnread(ctx, roomID, strconv.FormatInt(userID, 10)); err != nil {
					return err
				}
				cmd.Printf("Marked room %s as unread for user %d.\n", roomID, userID)
				return nil
			})
		},
	}
}

// chatOpenCmd connects to the chat socket and relays lines from stdin until /quit or end of input.
func chatOpenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "open <user-id>",
		Short: "Chat live with another member",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			receiverID, err := parseID("user", args[0])
			if err != nil {
				printError(cmd, err)
				return
			}
			withSession(cmd, func(ctx context.Context, s *session) error {
				return runChat(ctx, cmd, s.client, strconv.FormatInt(receiverID, 10))
			})
		},
	}
}

func runChat(ctx context.Context, cmd *cobra.Command, c *client.Client, receiverID string) error {
	conn, err := c.DialChat(ctx, receiverID)
	if err != nil {
		return err
	}
	defer conn.Close()

	cmd.Printf("Connected. Type a message and press Enter, or %s to leave.\n", quitCommand)

	received := make(chan error, 1)
	go func() {
		for {
			msg, err := conn.Receive()
			if err != nil {
				received <- err
				return
			}
			cmd.Println(formatChatMessage(msg))
		}
	}()

	lines := make(chan string)
	done := make(chan struct{})
	defer close(done)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(cmd.InOrStdin())
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
		if err := scanner.Err(); err != nil {
			log.Warn().Err(err).Msg("Stopped reading chat input")
		}
	}()

relay:
	for {
		var line string
		select {
		case <-ctx.Done():
			break relay
		case l, ok := <-lines:
			if !ok {
				break relay
			}
			line = strings.TrimSpace(l)
		}
		if line == "" {
			continue
		}
		if line == quitCommand {
			break
		}
		if err := conn.Send(line); err != nil {
			select {
			case rerr := <-received:
				if errors.Is(rerr, client.ErrChatClosed) {
					cmd.Println("The chat was closed by the server.")
					return nil
				}
				return fmt.Errorf("chat connection lost: %w", rerr)
			default:
			}
			return fmt.Errorf("failed to send message: %w", err)
		}
	}

	cmd.Println("Chat closed.")
	return nil
}

func formatChatMessage(m client.ChatMessage) string {
	name := m.SenderNickName
	if name == "" {
		name = m.SenderID
	}
	if m.CreatedAt == "" {
		return fmt.Sprintf("%s: %s", name, m.Content)
	}
	return fmt.Sprintf("[%s] %s: %s", m.CreatedAt, name, m.Content)
}
