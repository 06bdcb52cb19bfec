package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"syscall"

	"github.com/common-nighthawk/go-figure"
	"github.com/fatih/color"
	"github.com/forest-guardian/mine-impact-monitor/internal/notification"
	"github.com/forest-guardian/mine-impact-monitor/internal/properties"
)

func printBanner() {
	figure1 := figure.NewFigure("Mine", "isometric1", true)
	figure2 := figure.NewFigure("Monitor", "isometric1", true)
	color.Cyan(figure1.String())
	color.Cyan(figure2.String())
	fmt.Println()
}

// recoverPanic reports a panic of the CLI to the error webhook.
func recoverPanic(notifier *notification.Discord) {
	r := recover()
	if r == nil {
		return
	}

	pc, file, line, ok := runtime.Caller(3)
	location := "Unknown location"
	if ok {
		location = fmt.Sprintf("%s:%d in %s", file, line, runtime.FuncForPC(pc).Name())
	}

	color.Red("\nPANIC: %v", r)
	color.Red("Location: %s", location)
	color.Red("Exiting...")

	errMessage := fmt.Sprintf("Mine monitor panic:\n\n%v\n\nLocation: %s\n\nStack trace:\n%s", r, location, debug.Stack())
	if err := notifier.SendErrorNotification(context.Background(), errMessage); err != nil {
		color.Red("Failed to send notification: %s", err.Error())
	}
	os.Exit(2)
}

func main() {
	properties.LoadEnv()

	notifier := notification.NewDiscord(
		os.Getenv("DISCORD_ALERT_NOTIFICATION_URL"),
		os.Getenv("DISCORD_ERROR_NOTIFICATION_URL"),
	)
	defer recoverPanic(notifier)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCommand(&app{notifier: notifier}).ExecuteContext(ctx)
	stop()
	if err != nil {
		color.Red("Error: %s", err.Error())
		os.Exit(1)
	}
}
