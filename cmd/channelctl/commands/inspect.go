package commands

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"securechannel/internal/crypto"
	"securechannel/internal/domain"
	"securechannel/internal/failure"
	"securechannel/internal/store"
)

func inspectCmd() *cobra.Command {
	var partyName string
	cmd := &cobra.Command{
		Use:   "inspect [connect-id]",
		Short: "List saved channels or print non-secret metadata of one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			home := cfg.Home
			if partyName != "" {
				home = filepath.Join(home, partyName)
			}
			st := store.NewRatchetFileStore(home, cfg.Passphrase)

			if len(args) == 0 {
				ids, err := st.ListConnectIDs()
				if err != nil {
					return err
				}
				for _, id := range ids {
					fmt.Fprintln(out, id)
				}
				return nil
			}

			n, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return failure.Wrap(failure.ErrInvalidInput, "inspect", err)
			}
			id := domain.ConnectID(n)
			state, ok, err := st.LoadRatchetState(id)
			if err != nil {
				return err
			}
			if !ok {
				return failure.New(failure.ErrNotInitialized, "inspect", "no saved state for connect id %d", id)
			}
			defer state.Wipe()

			role := "responder"
			if state.IsInitiator {
				role = "initiator"
			}
			age := time.Since(state.CreatedAt).Truncate(time.Second)
			fmt.Fprintf(out, "connect id:        %d\n", id)
			fmt.Fprintf(out, "role:              %s\n", role)
			fmt.Fprintf(out, "created:           %s (%s ago)\n", state.CreatedAt.Format(time.RFC3339), age)
			fmt.Fprintf(out, "expired:           %t\n", age > cfg.SessionTimeout)
			fmt.Fprintf(out, "nonce counter:     %d\n", state.NonceCounter)
			fmt.Fprintf(out, "sending index:     %d\n", state.SendingStep.CurrentIndex)
			fmt.Fprintf(out, "receiving index:   %d\n", state.ReceivingStep.CurrentIndex)
			if kp := state.SendingStep.DHKeyPair; kp != nil {
				fmt.Fprintf(out, "sending dh key:    %s\n", crypto.Fingerprint(kp.Public[:]))
			}
			fmt.Fprintf(out, "peer dh key:       %s\n", crypto.Fingerprint(state.PeerDHPublicKey[:]))
			fmt.Fprintf(out, "dh ratchet due:    %t\n", state.ReceivedNewDHKeyPending)
			if b := state.PeerBundle; b != nil {
				fmt.Fprintf(out, "peer identity:     %s %s\n", crypto.Fingerprint(b.IdentityX25519[:]), crypto.B64(b.IdentityX25519[:]))
				fmt.Fprintf(out, "peer signing key:  %s\n", crypto.Fingerprint(b.IdentityEd25519[:]))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&partyName, "party", "", "subdirectory of --home written by demo (alice or bob)")
	return cmd
}
