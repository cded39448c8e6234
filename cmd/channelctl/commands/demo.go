package commands

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"securechannel/internal/app"
	"securechannel/internal/crypto"
	"securechannel/internal/domain"
	"securechannel/internal/protocol/wire"
)

type party struct {
	name string
	w    *app.Wire
}

func newParty(name string) (*party, error) {
	c := cfg
	c.Home = filepath.Join(cfg.Home, name)
	w, err := app.NewWire(c)
	if err != nil {
		return nil, err
	}
	return &party{name: name, w: w}, nil
}

// relayHandshake moves a handshake message through its wire encoding.
func relayHandshake(m domain.HandshakeMessage) (domain.HandshakeMessage, int, error) {
	raw, err := wire.EncodeHandshake(m)
	if err != nil {
		return domain.HandshakeMessage{}, 0, err
	}
	out, err := wire.DecodeHandshake(raw)
	return out, len(raw), err
}

// send encrypts msg from one party, moves it through the wire encoding and
// decrypts it at the other.
func send(out io.Writer, id domain.ConnectID, from, to *party, msg string) error {
	env, err := from.w.Sessions.Encrypt(id, []byte(msg))
	if err != nil {
		return err
	}
	raw, err := wire.EncodeEnvelope(env)
	if err != nil {
		return err
	}
	decoded, err := wire.DecodeEnvelope(raw)
	if err != nil {
		return err
	}
	pt, err := to.w.Sessions.Decrypt(id, decoded)
	if err != nil {
		return err
	}

	dh := "-"
	if env.DHPublicKey != nil {
		dh = crypto.Fingerprint(env.DHPublicKey[:]).String()
	}
	fmt.Fprintf(out, "%-5s -> %-5s index=%-3d dh=%-16s bytes=%-4d %q\n",
		from.name, to.name, env.RatchetIndex, dh, len(raw), pt)
	return nil
}

func demoCmd() *cobra.Command {
	var (
		connectID uint32
		messages  int
		replies   int
		save      bool
	)
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a handshake and message exchange between two in-process parties",
		Long: "demo creates two identities (alice and bob), runs the three-step handshake and\n" +
			"exchanges messages through the wire codec. With --save both ratchet states are\n" +
			"sealed under <home>/alice and <home>/bob for later inspection.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			id := domain.ConnectID(connectID)

			alice, err := newParty("alice")
			if err != nil {
				return err
			}
			defer alice.w.Close()
			bob, err := newParty("bob")
			if err != nil {
				return err
			}
			defer bob.w.Close()

			hello, err := alice.w.Sessions.Begin(id, domain.ExchangeEphemeralConnect)
			if err != nil {
				return err
			}
			hello, n, err := relayHandshake(hello)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "alice -> bob   handshake %s (%d bytes)\n", hello.State, n)

			reply, err := bob.w.Sessions.Respond(id, hello)
			if err != nil {
				return err
			}
			reply, n, err = relayHandshake(reply)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "bob   -> alice handshake %s (%d bytes)\n", reply.State, n)

			if err := alice.w.Sessions.Complete(id, reply); err != nil {
				return err
			}
			fmt.Fprintln(out, "handshake complete")

			for i := 1; i <= messages; i++ {
				msg := "hello"
				if i > 1 {
					msg = fmt.Sprintf("message %d", i)
				}
				if err := send(out, id, alice, bob, msg); err != nil {
					return err
				}
			}
			for i := 1; i <= replies; i++ {
				if err := send(out, id, bob, alice, fmt.Sprintf("reply %d", i)); err != nil {
					return err
				}
			}

			if save {
				for _, p := range []*party{alice, bob} {
					if err := p.w.Sessions.Save(id); err != nil {
						return err
					}
					fmt.Fprintf(out, "saved %s state to %s\n", p.name, p.w.Config.Home)
				}
			}
			return nil
		},
	}
	cmd.Flags().Uint32Var(&connectID, "connect-id", 1, "connect id of the demo channel")
	cmd.Flags().IntVarP(&messages, "messages", "n", 10, "messages alice sends")
	cmd.Flags().IntVar(&replies, "replies", 1, "messages bob sends back")
	cmd.Flags().BoolVar(&save, "save", false, "seal both ratchet states to disk")
	return cmd
}
