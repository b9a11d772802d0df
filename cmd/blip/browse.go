package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/renderinc/blip/internal/feed"
)

// terminalHost prints the interactions a graphical shell would perform
type terminalHost struct {
	out io.Writer
}

func (h terminalHost) OpenURL(ctx context.Context, url string) error {
	_, err := fmt.Fprintf(h.out, "Open in browser: %s\n", url)
	return err
}

func (h terminalHost) Share(ctx context.Context, subject, body string) error {
	_, err := fmt.Fprintf(h.out, "Share %q: %s\n", subject, body)
	return err
}

func (h terminalHost) ShowTranscript(ctx context.Context, title, content string) error {
	_, err := fmt.Fprintf(h.out, "=== %s ===\n%s\n", title, content)
	return err
}

func (h terminalHost) Speak(ctx context.Context, text string) error {
	_, err := fmt.Fprintf(h.out, "(speaking) %s\n", text)
	return err
}

func (h terminalHost) StopSpeaking(ctx context.Context) error {
	_, err := fmt.Fprintln(h.out, "(speech stopped)")
	return err
}

func printBrowseHelp() {
	fmt.Println("Commands:")
	fmt.Println("  feed                 Show the feed from the newest comic")
	fmt.Println("  search <text>        Show comics containing text")
	fmt.Println("  more                 Scroll to the end of the list")
	fmt.Println("  scroll <row>         Report row as the last visible one")
	fmt.Println("  retry                Retry a failed page")
	fmt.Println("  list                 Print every loaded row")
	fmt.Println("  <gesture> <row>      favorite, open, explain, transcript, share, speak, stop")
	fmt.Println("  quit")
}

func runBrowse(ctx context.Context) {
	db := openDB()
	defer db.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	loop := feed.NewLoop()
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		loop.Run(ctx)
	}()

	list := feed.NewList(db, terminalHost{out: os.Stdout}, log)
	ctrl := feed.NewController(list, loop, cfg.ScrollThreshold, log)

	// Rows are printed as they arrive; a shorter list means a new session.
	shown := 0
	list.OnChange(func() {
		if list.Len() < shown {
			shown = 0
		}
		rows := list.Rows()
		for i := shown; i < len(rows); i++ {
			printRow(i, rows[i])
		}
		shown = len(rows)
	})
	ctrl.OnError(func(err error) {
		fmt.Printf("Could not load comics: %v\nType 'retry' to try again.\n", err)
	})

	onLoop := func(fn func()) {
		if err := loop.Call(ctx, fn); err != nil {
			log.WithError(err).Debug("Browse loop unavailable")
		}
	}

	onLoop(func() { ctrl.Reset(ctx, feed.Feed(db)) })
	ctrl.Wait()
	printBrowseHelp()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		cmd, arg, _ := strings.Cut(strings.TrimSpace(scanner.Text()), " ")
		arg = strings.TrimSpace(arg)

		switch cmd {
		case "":
			continue
		case "quit", "exit":
			cancel()
			<-loopDone
			return
		case "help":
			printBrowseHelp()
		case "feed":
			onLoop(func() { ctrl.Reset(ctx, feed.Feed(db)) })
		case "search":
			onLoop(func() { ctrl.Reset(ctx, feed.Query(db, arg)) })
		case "more":
			onLoop(func() {
				if !ctrl.Scrolled(ctx, list.Len()-1) && ctrl.Exhausted() {
					fmt.Println("No more comics")
				}
			})
		case "scroll":
			row, err := strconv.Atoi(arg)
			if err != nil {
				fmt.Println("Usage: scroll <row>")
				continue
			}
			onLoop(func() { ctrl.Scrolled(ctx, row) })
		case "retry":
			onLoop(func() {
				if !ctrl.Retry(ctx) {
					fmt.Println("Nothing to retry")
				}
			})
		case "list":
			onLoop(func() {
				for i, row := range list.Rows() {
					printRow(i, row)
				}
			})
		default:
			gesture, err := feed.ParseGesture(cmd)
			if err != nil {
				fmt.Printf("Unknown command: %s\n", cmd)
				continue
			}
			row, err := strconv.Atoi(arg)
			if err != nil {
				fmt.Printf("Usage: %s <row>\n", cmd)
				continue
			}
			onLoop(func() {
				if err := list.Dispatch(ctx, row, gesture); err != nil {
					fmt.Printf("Error: %v\n", err)
				} else if gesture == feed.GestureFavorite {
					r, _ := list.Row(row)
					fmt.Printf("Favorite %d: %v\n", r.Num, r.Favorite)
				}
			})
		}

		// Let page requests land before the next prompt
		ctrl.Wait()
		onLoop(func() {})
	}

	if err := scanner.Err(); err != nil {
		log.WithError(err).Warn("Error reading input")
	}
	cancel()
	<-loopDone
}

func printRow(i int, row feed.Row) {
	star := " "
	if row.Favorite {
		star = "*"
	}
	fmt.Printf("[%3d] %s %-40s %s\n", i, star, row.Title, row.Date)
}
