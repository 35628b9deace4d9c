package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/udisondev/goicq/internal/client"
	"github.com/udisondev/goicq/internal/config"
	"github.com/udisondev/goicq/internal/event"
	"github.com/udisondev/goicq/internal/login"
	"github.com/udisondev/goicq/internal/metrics"
)

const qrPollInterval = 2 * time.Second

func run(ctx context.Context, cfg config.Client, in io.Reader, out io.Writer) error {
	slog.Info("goicq starting", "uin", cfg.Uin, "protocol", cfg.Protocol, "token_store", cfg.TokenStore)

	st, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	dev, err := st.device(ctx)
	if err != nil {
		return fmt.Errorf("loading device: %w", err)
	}
	passwordMD5, err := cfg.PasswordHash()
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	bus := event.NewBus()
	offline := make(chan event.Offline, 1)
	bus.Subscribe("system", func(e event.Event) {
		printEvent(out, st.dir(), e)
		if off, ok := e.(event.Offline); ok {
			select {
			case offline <- off:
			default:
			}
		}
	})

	cl, err := client.New(client.Config{
		Uin:                cfg.Uin,
		PasswordMD5:        passwordMD5,
		Device:             dev,
		AllowQR:            cfg.AllowQR,
		Endpoints:          cfg.Endpoints,
		DialTimeout:        cfg.DialTimeout,
		MaxFrameSize:       cfg.MaxFrameSize,
		RequestTimeout:     cfg.RequestTimeout,
		HeartbeatInterval:  cfg.HeartbeatInterval,
		HeartbeatGrace:     cfg.HeartbeatGrace,
		ReconnectDelay:     cfg.ReconnectDelay,
		MaxReconnects:      cfg.MaxReconnects,
		TokenRefreshBefore: cfg.TokenRefreshBefore,
		Tokens:             st.tokens,
		Metrics:            metrics.New(reg),
		Events:             bus,
	})
	if err != nil {
		return fmt.Errorf("creating client: %w", err)
	}
	defer cl.Close()

	if err := connect(ctx, cl, bufio.NewScanner(in), out); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			slog.Info("metrics listening", "addr", cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		select {
		case <-gctx.Done():
			slog.Info("shutting down", "uin", cfg.Uin)
			return cl.Close()
		case off := <-offline:
			return fmt.Errorf("session ended: %s: %s", off.Reason, off.Message)
		}
	})

	return g.Wait()
}

// connect dials and answers every continuation from the terminal until the
// session is online.
func connect(ctx context.Context, cl *client.Client, in *bufio.Scanner, out io.Writer) error {
	err := cl.Connect(ctx)
	for err != nil {
		var lerr *login.Error
		if !errors.As(err, &lerr) || !lerr.Continuation {
			return err
		}
		err = answer(ctx, cl, lerr.Stage, in, out)
	}
	return nil
}

func answer(ctx context.Context, cl *client.Client, stage login.Stage, in *bufio.Scanner, out io.Writer) error {
	switch stage {
	case login.StageNeedSlider:
		ticket, err := prompt(in, out, "slider ticket: ")
		if err != nil {
			return err
		}
		return cl.SubmitSlider(ctx, ticket)
	case login.StageNeedCaptcha:
		code, err := prompt(in, out, "captcha: ")
		if err != nil {
			return err
		}
		return cl.SubmitCaptcha(ctx, code)
	case login.StageNeedDeviceVerify:
		choice, err := prompt(in, out, "press enter once verified, or type sms: ")
		if err != nil {
			return err
		}
		if strings.EqualFold(choice, "sms") {
			return cl.RequestSMS(ctx)
		}
		return cl.RetryDevice(ctx)
	case login.StageNeedSMSCode:
		code, err := prompt(in, out, "sms code: ")
		if err != nil {
			return err
		}
		return cl.SubmitSMS(ctx, code)
	case login.StageNeedQRScan:
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(qrPollInterval):
		}
		return cl.PollQR(ctx)
	default:
		return fmt.Errorf("login paused in %s", stage)
	}
}

func prompt(in *bufio.Scanner, out io.Writer, label string) (string, error) {
	fmt.Fprint(out, label)
	if !in.Scan() {
		if err := in.Err(); err != nil {
			return "", fmt.Errorf("reading input: %w", err)
		}
		return "", io.ErrUnexpectedEOF
	}
	return strings.TrimSpace(in.Text()), nil
}

func printEvent(out io.Writer, dir string, e event.Event) {
	save := func(name string, b []byte) (string, bool) {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(dir, 0700); err != nil {
			slog.Error("saving "+name, "error", err)
			return "", false
		}
		if err := os.WriteFile(path, b, 0600); err != nil {
			slog.Error("saving "+name, "error", err)
			return "", false
		}
		return path, true
	}

	switch e := e.(type) {
	case event.Online:
		fmt.Fprintln(out, "online")
	case event.Offline:
		fmt.Fprintf(out, "offline (%s): %s\n", e.Reason, e.Message)
	case event.SliderRequired:
		fmt.Fprintf(out, "slider verification required, open:\n%s\n", e.URL)
	case event.CaptchaRequired:
		if path, ok := save("captcha.jpg", e.Image); ok {
			fmt.Fprintf(out, "captcha saved to %s\n", path)
		}
	case event.DeviceVerify:
		if e.Phone != "" {
			fmt.Fprintf(out, "device lock: verify by sms to %s or open:\n%s\n", e.Phone, e.URL)
		} else {
			fmt.Fprintf(out, "device lock: open:\n%s\n", e.URL)
		}
	case event.SMSSent:
		fmt.Fprintf(out, "code sent to %s\n", e.Phone)
	case event.QRCode:
		if path, ok := save("qrcode.png", e.Image); ok {
			fmt.Fprintf(out, "scan %s with the mobile app\n", path)
		}
	case event.QRScanState:
		fmt.Fprintf(out, "qrcode: %s\n", e.State)
	case event.LoginError:
		fmt.Fprintf(out, "login error %d: %s\n", e.Code, e.Message)
	case event.Reconnecting:
		fmt.Fprintf(out, "reconnecting (attempt %d)\n", e.Attempt)
	default:
		fmt.Fprintln(out, e.Name())
	}
}
