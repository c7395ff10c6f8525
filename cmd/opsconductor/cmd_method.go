package main

import (
	"context"
	"fmt"

	"github.com/HerbHall/opsconductor/internal/target"
)

func runMethodAdd(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("method add")
	var req target.AddMethodRequest
	overrides := configFlag{}
	targetID := fs.Int64("target", 0, "target id")
	keyFile := fs.String("ssh-key-file", "", "private key file (- for stdin)")
	fs.StringVar(&req.MethodType, "type", "", "method type")
	fs.StringVar(&req.Host, "host", "", "host or IP address")
	fs.IntVar(&req.Port, "port", 0, "port (0 uses the protocol default)")
	fs.BoolVar(&req.IsPrimary, "primary", false, "make this the primary method")
	fs.IntVar(&req.Priority, "priority", 0, "priority, lower first (0 appends)")
	fs.StringVar(&req.Username, "username", "", "credential username")
	fs.StringVar(&req.Password, "password", "", "password, community string, SNMPv3 auth key or API key")
	fs.StringVar(&req.SSHPassphrase, "passphrase", "", "private key passphrase or SNMPv3 privacy key")
	fs.Var(overrides, "set", "protocol config override key=value (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireID("target", *targetID); err != nil {
		return err
	}
	key, err := readKeyFile(*keyFile)
	if err != nil {
		return err
	}
	req.SSHKey = key
	req.Config = overrides.Map()

	m, err := a.targets.AddCommunicationMethod(ctx, *targetID, req)
	if err != nil {
		return err
	}
	return printJSON(m)
}

func runMethodUpdate(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("method update")
	overrides := configFlag{}
	targetID := fs.Int64("target", 0, "target id")
	id := fs.Int64("id", 0, "method id")
	methodType := fs.String("type", "", "new method type (resets config to defaults)")
	host := fs.String("host", "", "host or IP address")
	port := fs.Int("port", 0, "port")
	primary := fs.Bool("primary", false, "make this the primary method")
	active := fs.Bool("active", true, "activate or deactivate the method")
	priority := fs.Int("priority", 0, "priority, lower first")
	username := fs.String("username", "", "credential username")
	password := fs.String("password", "", "new password (masked values keep the current one)")
	keyFile := fs.String("ssh-key-file", "", "new private key file (- for stdin)")
	passphrase := fs.String("passphrase", "", "new key passphrase or SNMPv3 privacy key")
	fs.Var(overrides, "set", "protocol config override key=value (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireID("target", *targetID); err != nil {
		return err
	}
	if err := requireID("id", *id); err != nil {
		return err
	}
	seen := visited(fs)

	patch := target.MethodPatch{
		ID:            *id,
		MethodType:    *methodType,
		Host:          optString(seen, "host", *host),
		Port:          optInt(seen, "port", *port),
		Config:        overrides.Map(),
		IsPrimary:     optBool(seen, "primary", *primary),
		IsActive:      optBool(seen, "active", *active),
		Priority:      optInt(seen, "priority", *priority),
		Username:      optString(seen, "username", *username),
		Password:      optSecret(seen, "password", *password),
		SSHPassphrase: optSecret(seen, "passphrase", *passphrase),
	}
	if seen["ssh-key-file"] {
		key, err := readKeyFile(*keyFile)
		if err != nil {
			return err
		}
		patch.SSHKey = optSecret(seen, "ssh-key-file", key)
	}

	m, err := a.targets.UpdateCommunicationMethod(ctx, *targetID, *id, patch)
	if err != nil {
		return err
	}
	return printJSON(m)
}

func runMethodDelete(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("method delete")
	targetID := fs.Int64("target", 0, "target id")
	id := fs.Int64("id", 0, "method id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireID("target", *targetID); err != nil {
		return err
	}
	if err := requireID("id", *id); err != nil {
		return err
	}
	if err := a.targets.DeleteCommunicationMethod(ctx, *targetID, *id); err != nil {
		return err
	}
	fmt.Printf("method %d deleted from target %d\n", *id, *targetID)
	return nil
}

func runMethodTest(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("method test")
	targetID := fs.Int64("target", 0, "target id")
	id := fs.Int64("id", 0, "method id")
	var opts target.TestOptions
	fs.StringVar(&opts.TestRecipient, "recipient", "", "smtp only: send a test message to this address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireID("target", *targetID); err != nil {
		return err
	}
	if err := requireID("id", *id); err != nil {
		return err
	}
	res, err := a.targets.TestCommunicationMethod(ctx, *targetID, *id, opts)
	if err != nil {
		return err
	}
	return printResult(res.Success, res)
}
