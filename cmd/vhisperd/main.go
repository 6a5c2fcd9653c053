// Command vhisperd drives a Pipeline directly from a terminal, without
// a host shell or FFI boundary in the loop — useful for exercising a
// provider against a real microphone while developing the core.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/vimo-ai/vhisper-core/pkg/config"
	"github.com/vimo-ai/vhisper-core/pkg/pipeline"
)

func main() {
	godotenv.Load()

	configPath := flag.String("config", "", "path to a config JSON file (defaults to Qwen from DASHSCOPE_API_KEY)")
	frameMs := flag.Int("frame-ms", 100, "recognizer chunk duration in milliseconds")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	p, err := pipeline.NewFromConfig(*cfg, *frameMs)
	if err != nil {
		log.Fatalf("create pipeline: %v", err)
	}
	defer p.Close()

	done := make(chan struct{})
	var closeOnce sync.Once
	cb := func(ev pipeline.Event) {
		switch ev.Kind {
		case pipeline.EventPartial:
			fmt.Printf("\r%s%s", ev.Confirmed, ev.Stash)
		case pipeline.EventFinal:
			fmt.Printf("\r%s\n", ev.Text)
			closeOnce.Do(func() { close(done) })
		case pipeline.EventError:
			log.Printf("error: %s", ev.Message)
			closeOnce.Do(func() { close(done) })
		}
	}

	if code := p.StartStreaming(cb); code != pipeline.CodeOK {
		log.Fatalf("start_streaming rejected, code=%v", code)
	}
	log.Println("recording — press Ctrl+C to stop, twice to cancel")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Println("stopping...")
		p.StopStreaming()
	case <-done:
		return
	}

	select {
	case <-done:
	case <-sigCh:
		log.Println("cancelling...")
		p.CancelStreaming()
	case <-time.After(5 * time.Second):
		log.Println("no terminal final after 5s, cancelling")
		p.CancelStreaming()
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return defaultConfig(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return config.Load(data)
}

func defaultConfig() *config.Config {
	return &config.Config{
		ASR: config.ASRConfig{
			Provider: config.ASRQwen,
			Qwen: config.ProviderParams{
				APIKey: os.Getenv("DASHSCOPE_API_KEY"),
				Model:  "qwen3-asr-flash-realtime",
			},
		},
		Output: config.DefaultOutput(),
	}
}
