package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Mindburn-Labs/triad/pkg/config"
	"github.com/Mindburn-Labs/triad/pkg/gate"
	"github.com/Mindburn-Labs/triad/pkg/shadow"
)

// loadConfig reads the environment and reports failures on stderr.
func loadConfig(stderr io.Writer) (*config.Config, bool) {
	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return nil, false
	}
	return cfg, true
}

func runSealCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("seal", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		secret     string
		mask       int64
		context    string
		path       string
		nonce      string
		timestamp  int64
		jsonOutput bool
	)
	cmd.StringVar(&secret, "secret", "", "Shared secret (default $TRIAD_SECRET)")
	cmd.Int64Var(&mask, "mask", 0, "Structural mask")
	cmd.StringVar(&context, "context", "GET", "Request context")
	cmd.StringVar(&path, "path", "/", "Request path")
	cmd.StringVar(&nonce, "nonce", "", "Nonce (default: random UUID)")
	cmd.Int64Var(&timestamp, "timestamp", 0, "Timestamp in ms (default: now)")
	cmd.BoolVar(&jsonOutput, "json", false, "Print the whole signed request as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	if secret == "" {
		cfg, ok := loadConfig(stderr)
		if !ok {
			return 2
		}
		secret = cfg.Secret
	}
	if nonce == "" {
		nonce = uuid.NewString()
	}
	if timestamp == 0 {
		timestamp = time.Now().UnixMilli()
	}

	req, err := gate.SignRequest([]byte(secret), gate.SecureRequest{
		Mask: mask, Context: context, Timestamp: timestamp, Path: path, Nonce: nonce,
	})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	if jsonOutput {
		enc := json.NewEncoder(stdout)
		if err := enc.Encode(req); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}
	_, _ = fmt.Fprintln(stdout, req.Seal)
	return 0
}

func runMaskCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("mask", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var decode string
	cmd.StringVar(&decode, "decode", "", "Decode a mask into permissions")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	if decode != "" {
		m, err := strconv.ParseInt(decode, 10, 64)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: invalid mask %q\n", decode)
			return 2
		}
		names := make([]string, 0)
		for _, p := range gate.Permissions(m) {
			names = append(names, p.String())
		}
		_, _ = fmt.Fprintf(stdout, "mask=%d valid=%t permissions=%s\n", m, gate.IsValidMask(m), strings.Join(names, ","))
		return 0
	}

	if cmd.NArg() == 0 {
		_, _ = fmt.Fprintln(stderr, "Usage: triad mask <permission>... | --decode <mask>")
		return 2
	}
	perms := make([]gate.Permission, 0, cmd.NArg())
	for _, arg := range cmd.Args() {
		p, err := gate.ParsePermission(arg)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		perms = append(perms, p)
	}
	m, err := gate.BuildMask(perms...)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "%d (%b)\n", m, m)
	return 0
}

func runShadowCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("shadow", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		secret  string
		context string
		path    string
		nonce   string
		check   bool
	)
	cmd.StringVar(&secret, "secret", "", "Shared secret (default $TRIAD_SECRET)")
	cmd.StringVar(&context, "context", "GET", "Request context")
	cmd.StringVar(&path, "path", "/", "Request path")
	cmd.StringVar(&nonce, "nonce", "", "Request nonce")
	cmd.BoolVar(&check, "check", false, "Validate the decoy against the account record schema")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	profile := shadow.DefaultProfile()
	if secret == "" {
		cfg, ok := loadConfig(stderr)
		if !ok {
			return 2
		}
		secret = cfg.Secret
		if cfg.ShadowProfile != nil {
			profile = *cfg.ShadowProfile
		}
	}

	synth, err := shadow.NewSynthesizer([]byte(secret), profile)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	out, err := synth.Generate(context, path, nonce).Canonical()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if check {
		if err := shadow.ValidateShape([]byte(out)); err != nil {
			_, _ = fmt.Fprintf(stderr, "Shape check failed: %v\n", err)
			return 1
		}
	}
	_, _ = fmt.Fprintln(stdout, out)
	return 0
}
