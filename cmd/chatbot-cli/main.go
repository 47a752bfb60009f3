// Command chatbot-cli is an interactive terminal client for the chatbot server.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
)

func main() {
	addr := flag.String("addr", "ws://localhost:5000/ws", "WebSocket server address")
	sessionID := flag.String("session", "", "Session ID to resume (empty starts a new one)")
	flag.Parse()

	log.SetFlags(log.Ltime)

	client, err := Dial(*addr)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer client.Close()

	if err := client.Hello(*sessionID); err != nil {
		log.Fatalf("Hello failed: %v", err)
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	go func() {
		<-interrupt
		fmt.Println("\nInterrupted")
		client.Close()
		os.Exit(0)
	}()

	repl(client, os.Stdin, os.Stdout)
}

// repl reads lines from in until EOF or an exit command.
func repl(client *Client, in io.Reader, out io.Writer) {
	fmt.Fprintf(out, "Session: %s\n", client.SessionID())
	fmt.Fprintln(out, "🤖 Hola, como puedo ayudarte hoy? Para terminar escribe salir.")
	fmt.Fprintln(out, "Commands: /clear, /history, /quit")
	fmt.Fprintln(out)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "Tú: ")
		if !scanner.Scan() {
			return
		}

		input := strings.TrimSpace(scanner.Text())
		switch {
		case input == "":
			continue
		case input == "/quit" || strings.EqualFold(input, "salir"):
			fmt.Fprintln(out, "👋 Nos vemos.")
			return
		case input == "/clear":
			if err := client.Clear(); err != nil {
				fmt.Fprintf(out, "⚠️  %v\n", err)
				continue
			}
			fmt.Fprintln(out, "Conversation cleared")
		case input == "/history":
			history, err := client.History()
			if err != nil {
				fmt.Fprintf(out, "⚠️  %v\n", err)
				continue
			}
			for _, m := range history.History {
				fmt.Fprintf(out, "[%s] %s: %s\n", m.Timestamp.Format("15:04:05"), m.Role, m.Content)
			}
		default:
			reply, err := client.Chat(input)
			if err != nil {
				var serverErr *ServerError
				if !errors.As(err, &serverErr) {
					fmt.Fprintf(out, "⚠️  Connection lost: %v\n", err)
					return
				}
				fmt.Fprintf(out, "⚠️  %v\n", err)
				continue
			}
			fmt.Fprintf(out, "\nIA: %s\n\n", reply.Content)
		}
	}
}
