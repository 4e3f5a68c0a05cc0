// Command cryptalk is a terminal client for the relay. All plaintext stays
// on this side: keys are derived from the password, messages are sealed
// before they leave and opened after they arrive.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rafimaliki/cryptalk/internal/crypto"
	"github.com/rafimaliki/cryptalk/internal/model"
)

// ---- config/token store ----

type tokenFile struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	UserID      int64     `json:"user_id"`
	Username    string    `json:"username"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "cryptalk")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "cryptalk")
}

func tokenPath() string { return filepath.Join(cfgDir(), "token.json") }

func saveToken(tf tokenFile) error {
	_ = os.MkdirAll(cfgDir(), 0o700)
	f, err := os.Create(tokenPath())
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(tf)
}

func loadToken() (tokenFile, error) {
	var tf tokenFile
	b, err := os.ReadFile(tokenPath())
	if err != nil {
		return tf, err
	}
	if err := json.Unmarshal(b, &tf); err != nil {
		return tf, err
	}
	if tf.AccessToken == "" || time.Now().After(tf.ExpiresAt) {
		return tf, errors.New("no valid token (login required)")
	}
	return tf, nil
}

// ---- utils ----

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}

func mustKeys(password string) *model.KeyPair {
	kp, err := crypto.DeriveKeyPair(password)
	if err != nil {
		fail(err)
	}
	return kp
}

func usage() {
	fmt.Fprintf(os.Stderr, `cryptalk CLI
Usage:
  cryptalk -addr URL <cmd> [args]

Commands:
  version
  keys       -p <password>                       (show derived key pair)
  register   -u <username> -p <password>
  login      -u <username> -p <password>         (saves token)
  whois      -u <username>
  send       -p <password> -to <username> -text <message>
  history    -p <password> -with <username>
  recents
  listen     -p <password>                       (print incoming messages)
`)
	os.Exit(2)
}

// ---- main ----

var (
	version   = "dev"
	buildDate = "unknown"
)

// main dispatches subcommands against the relay API.
func main() {
	addr := flag.String("addr", "http://localhost:8080", "server base URL")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd := flag.Arg(0)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch cmd {

	case "version":
		fmt.Printf("cryptalk %s (%s)\n", version, buildDate)

	case "keys":
		fs := flag.NewFlagSet("keys", flag.ExitOnError)
		p := fs.String("p", "", "password")
		_ = fs.Parse(flag.Args()[1:])
		if *p == "" {
			fmt.Fprintln(os.Stderr, "need -p")
			os.Exit(1)
		}
		kp := mustKeys(*p)
		printJSON(map[string]string{"public_key": kp.PublicKey})

	case "register":
		fs := flag.NewFlagSet("register", flag.ExitOnError)
		u := fs.String("u", "", "username")
		p := fs.String("p", "", "password")
		_ = fs.Parse(flag.Args()[1:])
		if *u == "" || *p == "" {
			fmt.Fprintln(os.Stderr, "need -u and -p")
			os.Exit(1)
		}
		kp := mustKeys(*p)
		api := newAPIClient(*addr, "")
		user, err := api.register(ctx, *u, kp.PublicKey)
		if err != nil {
			fail(err)
		}
		printJSON(user)

	case "login":
		fs := flag.NewFlagSet("login", flag.ExitOnError)
		u := fs.String("u", "", "username")
		p := fs.String("p", "", "password")
		_ = fs.Parse(flag.Args()[1:])
		if *u == "" || *p == "" {
			fmt.Fprintln(os.Stderr, "need -u and -p")
			os.Exit(1)
		}
		kp := mustKeys(*p)
		api := newAPIClient(*addr, "")
		lg, err := authenticate(ctx, api, *u, kp)
		if err != nil {
			fail(err)
		}
		err = saveToken(tokenFile{
			AccessToken: lg.Token,
			ExpiresAt:   lg.ExpiresAt,
			UserID:      lg.User.ID,
			Username:    lg.User.Username,
		})
		if err != nil {
			fail(err)
		}
		fmt.Println("ok")

	case "whois":
		fs := flag.NewFlagSet("whois", flag.ExitOnError)
		u := fs.String("u", "", "username")
		_ = fs.Parse(flag.Args()[1:])
		if *u == "" {
			fmt.Fprintln(os.Stderr, "need -u")
			os.Exit(1)
		}
		tf, err := loadToken()
		if err != nil {
			fail(err)
		}
		api := newAPIClient(*addr, tf.AccessToken)
		user, err := api.lookup(ctx, *u)
		if err != nil {
			fail(err)
		}
		printJSON(user)

	case "send":
		fs := flag.NewFlagSet("send", flag.ExitOnError)
		p := fs.String("p", "", "password")
		to := fs.String("to", "", "recipient username")
		text := fs.String("text", "", "message text")
		_ = fs.Parse(flag.Args()[1:])
		if *p == "" || *to == "" || *text == "" {
			fmt.Fprintln(os.Stderr, "need -p, -to and -text")
			os.Exit(1)
		}
		cmdSend(ctx, *addr, *p, *to, *text)

	case "history":
		fs := flag.NewFlagSet("history", flag.ExitOnError)
		p := fs.String("p", "", "password")
		with := fs.String("with", "", "peer username")
		_ = fs.Parse(flag.Args()[1:])
		if *p == "" || *with == "" {
			fmt.Fprintln(os.Stderr, "need -p and -with")
			os.Exit(1)
		}
		cmdHistory(ctx, *addr, *p, *with)

	case "recents":
		tf, err := loadToken()
		if err != nil {
			fail(err)
		}
		api := newAPIClient(*addr, tf.AccessToken)
		chats, err := api.recents(ctx)
		if err != nil {
			fail(err)
		}
		printJSON(chats)

	case "listen":
		fs := flag.NewFlagSet("listen", flag.ExitOnError)
		p := fs.String("p", "", "password")
		_ = fs.Parse(flag.Args()[1:])
		if *p == "" {
			fmt.Fprintln(os.Stderr, "need -p")
			os.Exit(1)
		}
		cmdListen(*addr, *p)

	default:
		usage()
	}
}

func cmdSend(ctx context.Context, addr, password, to, text string) {
	tf, err := loadToken()
	if err != nil {
		fail(err)
	}
	kp := mustKeys(password)
	api := newAPIClient(addr, tf.AccessToken)

	peer, err := api.lookup(ctx, to)
	if err != nil {
		fail(err)
	}

	at := time.Now().UTC().Truncate(time.Second)
	msg, msgForSender, sig, err := seal(kp, peer.PublicKey, text, tf.Username, peer.Username, at)
	if err != nil {
		fail(err)
	}

	conn, err := dialWS(addr, tf.AccessToken)
	if err != nil {
		fail(err)
	}
	defer conn.Close()

	err = conn.WriteJSON(sendFrame{
		Type:             "new_message",
		ToUserID:         peer.ID,
		Message:          msg,
		MessageForSender: msgForSender,
		Signature:        sig,
		CreatedAt:        at,
	})
	if err != nil {
		fail(err)
	}

	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	var f recvFrame
	if err := conn.ReadJSON(&f); err != nil {
		fail(err)
	}
	switch f.Type {
	case "ack":
		fmt.Printf("sent (id %d)\n", f.Message.ID)
	case "error":
		fail(errors.New(f.Error))
	default:
		fail(fmt.Errorf("unexpected frame %q", f.Type))
	}
}

func cmdHistory(ctx context.Context, addr, password, with string) {
	tf, err := loadToken()
	if err != nil {
		fail(err)
	}
	kp := mustKeys(password)
	api := newAPIClient(addr, tf.AccessToken)

	peer, err := api.lookup(ctx, with)
	if err != nil {
		fail(err)
	}

	msgs, err := api.messages(ctx, tf.UserID, peer.ID)
	if err != nil {
		fail(err)
	}

	for _, m := range msgs {
		senderKey := peer.PublicKey
		who := peer.Username
		if m.FromUserID == tf.UserID {
			senderKey = kp.PublicKey
			who = tf.Username
		}
		text, verified, err := open(kp, tf.UserID, tf.Username, peer.Username, senderKey, m)
		if err != nil {
			fmt.Printf("[%s] %s: <unreadable: %v>\n", m.CreatedAt.Local().Format(time.DateTime), who, err)
			continue
		}
		mark := ""
		if !verified {
			mark = " (UNVERIFIED)"
		}
		fmt.Printf("[%s] %s: %s%s\n", m.CreatedAt.Local().Format(time.DateTime), who, text, mark)
	}
}

func cmdListen(addr, password string) {
	tf, err := loadToken()
	if err != nil {
		fail(err)
	}
	kp := mustKeys(password)

	conn, err := dialWS(addr, tf.AccessToken)
	if err != nil {
		fail(err)
	}
	defer conn.Close()
	fmt.Fprintln(os.Stderr, "listening, ctrl-c to stop")

	// Peer identities are cached per sender id for the session.
	peers := map[int64]*apiUser{}
	api := newAPIClient(addr, tf.AccessToken)

	for {
		var f recvFrame
		if err := conn.ReadJSON(&f); err != nil {
			fail(err)
		}
		if f.Type != "new_message" || f.Message == nil {
			continue
		}
		m := *f.Message

		peer := peers[m.FromUserID]
		if peer == nil {
			// One lookup per new correspondent.
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			chats, err := api.recents(ctx)
			cancel()
			if err == nil {
				for _, rc := range chats {
					if rc.PeerID == m.FromUserID {
						ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
						peer, _ = api.lookup(ctx, rc.PeerUsername)
						cancel()
						break
					}
				}
			}
			if peer == nil {
				fmt.Printf("message from user %d: <unknown sender, cannot verify>\n", m.FromUserID)
				continue
			}
			peers[m.FromUserID] = peer
		}

		text, verified, err := open(kp, tf.UserID, tf.Username, peer.Username, peer.PublicKey, m)
		if err != nil {
			fmt.Printf("[%s] %s: <unreadable: %v>\n", m.CreatedAt.Local().Format(time.DateTime), peer.Username, err)
			continue
		}
		mark := ""
		if !verified {
			mark = " (UNVERIFIED)"
		}
		fmt.Printf("[%s] %s: %s%s\n", m.CreatedAt.Local().Format(time.DateTime), peer.Username, text, mark)
	}
}
