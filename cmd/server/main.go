package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/tiffchow214/medicine-companion/internal/config"
	"github.com/tiffchow214/medicine-companion/internal/druginfo"
	"github.com/tiffchow214/medicine-companion/internal/httpapi"
	"github.com/tiffchow214/medicine-companion/internal/llm"
	"github.com/tiffchow214/medicine-companion/internal/logger"
	"github.com/tiffchow214/medicine-companion/internal/mailer"
	"github.com/tiffchow214/medicine-companion/internal/reminder"
	"github.com/tiffchow214/medicine-companion/internal/service"
	"github.com/tiffchow214/medicine-companion/internal/store"
	"github.com/tiffchow214/medicine-companion/internal/tts"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	zlog, err := logger.New(cfg.Debug)
	if err != nil {
		log.Fatalf("init logger failed: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	addr := resolveListenAddr(cfg)

	st, err := store.NewByEngine(cfg.StoreEngine, cfg.DataFile)
	if err != nil {
		zlog.Fatal("init store failed", zap.Error(err))
	}
	if closer, ok := st.(io.Closer); ok {
		defer func() {
			if err := closer.Close(); err != nil {
				zlog.Warn("store close failed", zap.Error(err))
			}
		}()
	}

	svc := service.NewService(st, zlog)

	if strings.TrimSpace(cfg.OpenAIKey) != "" {
		llmClient, err := llm.NewClient(llm.Config{
			APIKey:        cfg.OpenAIKey,
			BaseURL:       cfg.OpenAIBaseURL,
			ReminderModel: cfg.ReminderModel,
			ChatModel:     cfg.ChatModel,
			Timeout:       cfg.LLMTimeout,
		})
		if err != nil {
			zlog.Warn("init llm client failed, using fallback text only", zap.Error(err))
		} else {
			svc.SetReminderGenerator(llmClient)
			zlog.Info("llm integration enabled",
				zap.String("reminder_model", cfg.ReminderModel),
				zap.String("chat_model", cfg.ChatModel),
			)
		}
	} else {
		zlog.Info("llm integration disabled, using fallback text only")
	}

	if strings.TrimSpace(cfg.ElevenLabsKey) != "" {
		ttsClient, err := tts.NewClient(tts.Config{
			APIKey:  cfg.ElevenLabsKey,
			BaseURL: cfg.TTSBaseURL,
			VoiceID: cfg.DefaultVoiceID,
			Timeout: cfg.TTSTimeout,
		})
		if err != nil {
			zlog.Warn("init tts client failed, reminder audio disabled", zap.Error(err))
		} else {
			svc.SetSpeechSynthesizer(ttsClient)
			zlog.Info("tts integration enabled", zap.String("voice_id", cfg.DefaultVoiceID))
		}
	} else {
		zlog.Info("tts integration disabled")
	}

	if strings.TrimSpace(cfg.SendGridKey) != "" {
		alertMailer, err := mailer.New(mailer.Config{
			APIKey:    cfg.SendGridKey,
			FromName:  cfg.AlertFromName,
			FromEmail: cfg.AlertFromEmail,
		})
		if err != nil {
			zlog.Warn("init mailer failed, caregiver alerts disabled", zap.Error(err))
		} else {
			svc.SetAlertSender(alertMailer)
			zlog.Info("caregiver alerts enabled", zap.String("from", cfg.AlertFromEmail))
		}
	} else {
		zlog.Info("caregiver alerts disabled")
	}

	svc.SetDrugInfoFetcher(druginfo.NewClient(druginfo.Config{
		BaseURL: cfg.OpenFDABaseURL,
		Timeout: cfg.DrugTimeout,
	}))

	engine := reminder.NewEngine(st, reminder.Config{
		Interval:    cfg.PollInterval,
		DueWindow:   cfg.DueWindow,
		MissedAfter: cfg.MissedAfter,
	}, zlog)
	engine.SetAlertDispatcher(svc)
	engine.SetAnnouncer(svc)
	svc.SetReminderEngine(engine)
	if err := engine.Start(); err != nil {
		zlog.Fatal("start dose engine failed", zap.Error(err))
	}
	defer engine.Stop()

	handler := httpapi.NewHandler(svc, zlog)
	router := httpapi.NewRouter(handler, zlog)

	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	zlog.Info("medication companion backend listening", zap.String("addr", addr))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		zlog.Fatal("server failed", zap.Error(err))
	}
}

func resolveListenAddr(cfg *config.Config) string {
	defaultHost, defaultPort := parseListenAddr(cfg.Addr)
	if defaultPort <= 0 {
		defaultPort = 8080
	}
	if strings.TrimSpace(cfg.Host) != "" {
		defaultHost = strings.TrimSpace(cfg.Host)
	}
	if cfg.Port > 0 {
		defaultPort = cfg.Port
	}

	host := flag.String("host", defaultHost, "server listen host, e.g. 0.0.0.0")
	port := flag.Int("port", defaultPort, "server listen port, e.g. 8080")
	flag.Parse()

	return joinListenAddr(strings.TrimSpace(*host), *port)
}

func parseListenAddr(addr string) (string, int) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", 0
	}
	if strings.HasPrefix(addr, ":") {
		return "", parseIntValue(strings.TrimPrefix(addr, ":"), 0)
	}
	if host, port, err := net.SplitHostPort(addr); err == nil {
		return host, parseIntValue(port, 0)
	}
	if portOnly := parseIntValue(addr, 0); portOnly > 0 {
		return "", portOnly
	}
	return addr, 0
}

func joinListenAddr(host string, port int) string {
	if port <= 0 {
		port = 8080
	}
	if host == "" {
		return fmt.Sprintf(":%d", port)
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

func parseIntValue(raw string, fallback int) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return value
}
