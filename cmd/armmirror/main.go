package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/ayusman/armmirror/internal/app"
	"github.com/ayusman/armmirror/internal/arm"
	"github.com/ayusman/armmirror/internal/kinematics"
	"github.com/ayusman/armmirror/internal/server"
	"github.com/ayusman/armmirror/internal/store"
	"github.com/ayusman/armmirror/internal/tray"
)

func main() {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Fatalf("Failed to get home directory: %v", err)
	}
	dataDir := filepath.Join(homeDir, ".armmirror")

	addr := flag.String("addr", ":8080", "HTTP listen address")
	cameraID := flag.Int("camera", 0, "camera device index")
	mirror := flag.Bool("mirror", true, "flip camera frames horizontally")
	flag.StringVar(&dataDir, "data", dataDir, "directory holding the database")
	pluginDir := flag.String("plugins", "", "plugin directory (default <data>/plugins)")
	withTray := flag.Bool("tray", false, "show a system tray menu")
	replay := flag.String("replay", "", "replay a recorded pose file instead of using the camera")
	replayInterval := flag.Duration("replay-interval", 66*time.Millisecond, "delay between replayed frames")
	flag.Parse()

	fmt.Println("Arm Mirror - camera-driven robotic arm")

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	st, err := store.New(filepath.Join(dataDir, "armmirror.db"))
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer st.Close()

	cfg := app.DefaultConfig()
	cfg.Store = st
	cfg.Camera.DeviceID = *cameraID
	cfg.Camera.Mirror = *mirror
	cfg.PluginDir = *pluginDir
	if cfg.PluginDir == "" {
		cfg.PluginDir = filepath.Join(dataDir, "plugins")
	}

	a := app.New(cfg)
	defer a.Close()
	if err := a.Load(); err != nil {
		log.Fatalf("Failed to load settings: %v", err)
	}

	if *replay != "" {
		if err := runReplay(a, *replay, *replayInterval); err != nil {
			log.Fatalf("Replay failed: %v", err)
		}
		return
	}

	if err := a.Start(); err != nil {
		log.Printf("Camera unavailable (%v); serving without tracking", err)
	}

	webDir := findWebDir()
	if webDir != "" {
		fmt.Printf("Serving static files from: %s\n", webDir)
	}

	srv := server.New(server.Config{
		StaticDir: webDir,
		Store:     st,
		App:       a,
	})

	go func() {
		fmt.Printf("Starting server on %s\n", *addr)
		if err := srv.ListenAndServe(*addr); err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	if *withTray {
		runTray(a, *addr)
		return
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	log.Println("Shutting down")
}

// runReplay feeds a recorded pose file through the pipeline and logs the
// final arm state.
func runReplay(a *app.App, path string, interval time.Duration) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	frames, err := app.ReadRecording(f)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	outcomes, err := a.Replay(ctx, frames, interval)
	detected := 0
	for _, o := range outcomes {
		if _, ok := o.(kinematics.Detected); ok {
			detected++
		}
	}
	log.Printf("Replayed %d of %d frames, %d with an arm in view", len(outcomes), len(frames), detected)

	state := a.Arm().State()
	for _, j := range arm.Joints() {
		log.Printf("  %-16s %7.2f", j, state.Get(j))
	}
	return err
}

// runTray blocks in the tray event loop until the user quits.
func runTray(a *app.App, addr string) {
	t := tray.New(a.IsEnabled())
	t.OnToggle(a.SetEnabled)
	t.OnSettings(func() {
		if err := openBrowser(settingsURL(addr)); err != nil {
			log.Printf("Failed to open browser: %v", err)
		}
	})
	a.Subscribe(func(e app.Event) {
		if d, ok := e.Outcome.(kinematics.Detected); ok {
			t.SetLastSide(d.Side)
		} else {
			t.SetLastSide("")
		}
	})
	t.Run()
}

func settingsURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr + "/"
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and ~/.armmirror/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	homeWebDir := filepath.Join(homeDir, ".armmirror", "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}

	return ""
}
