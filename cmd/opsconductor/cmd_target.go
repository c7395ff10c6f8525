package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/HerbHall/opsconductor/internal/target"
	"github.com/HerbHall/opsconductor/pkg/models"
)

func runTargetCreate(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("target create")
	var req target.CreateTargetRequest
	overrides := configFlag{}
	keyFile := fs.String("ssh-key-file", "", "private key file (- for stdin)")
	fs.StringVar(&req.Name, "name", "", "target name")
	fs.StringVar(&req.OSType, "os", "", "operating system type (linux, windows, ...)")
	fs.StringVar(&req.IPAddress, "ip", "", "host or IP address of the primary method")
	fs.StringVar(&req.MethodType, "method", "ssh", "primary communication method type")
	fs.IntVar(&req.Port, "port", 0, "port (0 uses the protocol default)")
	fs.StringVar(&req.Username, "username", "", "credential username")
	fs.StringVar(&req.Password, "password", "", "password, community string, SNMPv3 auth key or API key")
	fs.StringVar(&req.SSHPassphrase, "passphrase", "", "private key passphrase or SNMPv3 privacy key")
	fs.StringVar(&req.Description, "description", "", "free-form description")
	fs.StringVar(&req.Environment, "environment", "", "development, staging, production or testing")
	fs.StringVar(&req.Location, "location", "", "location")
	fs.StringVar(&req.DataCenter, "data-center", "", "data center")
	fs.StringVar(&req.Region, "region", "", "region")
	fs.Var(overrides, "set", "protocol config override key=value (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	key, err := readKeyFile(*keyFile)
	if err != nil {
		return err
	}
	req.SSHKey = key
	req.Config = overrides.Map()

	t, err := a.targets.CreateTarget(ctx, req)
	if err != nil {
		return err
	}
	return printJSON(t)
}

func runTargetGet(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("target get")
	id := fs.Int64("id", 0, "target id")
	uuid := fs.String("uuid", "", "target uuid")
	serial := fs.String("serial", "", "target serial (TGT-000001)")
	host := fs.String("host", "", "host or IP address of any active method")
	name := fs.String("name", "", "target name (may match several)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var (
		t   *models.Target
		err error
	)
	switch {
	case *id > 0:
		t, err = a.targets.GetTargetByID(ctx, *id)
	case *uuid != "":
		t, err = a.targets.GetTargetByUUID(ctx, *uuid)
	case *serial != "":
		t, err = a.targets.GetTargetBySerial(ctx, *serial)
	case *host != "":
		t, err = a.targets.GetTargetByHost(ctx, *host)
	case *name != "":
		targets, err := a.targets.GetTargetsByName(ctx, *name)
		if err != nil {
			return err
		}
		return printJSON(targets)
	default:
		return errors.New("one of -id, -uuid, -serial, -host or -name is required")
	}
	if err != nil {
		return err
	}
	return printJSON(t)
}

func runTargetList(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("target list")
	var f target.ListFilter
	var status, method string
	fs.StringVar(&f.OSType, "os", "", "filter by OS type")
	fs.StringVar(&f.Environment, "environment", "", "filter by environment")
	fs.StringVar(&status, "status", "", "filter by status")
	fs.StringVar(&method, "method", "", "filter by communication method type")
	fs.IntVar(&f.Limit, "limit", 0, "maximum results (0 for all)")
	fs.IntVar(&f.Offset, "offset", 0, "results to skip")
	if err := fs.Parse(args); err != nil {
		return err
	}
	f.Status = models.TargetStatus(status)
	f.MethodType = models.MethodType(method)

	targets, err := a.targets.ListTargets(ctx, f)
	if err != nil {
		return err
	}
	return printJSON(targets)
}

// runTargetUpdate applies target fields plus the single-method shape to
// the primary method. Only flags given on the command line change anything.
func runTargetUpdate(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("target update")
	id := fs.Int64("id", 0, "target id")
	name := fs.String("name", "", "target name")
	description := fs.String("description", "", "description")
	osType := fs.String("os", "", "operating system type")
	environment := fs.String("environment", "", "environment")
	location := fs.String("location", "", "location")
	dataCenter := fs.String("data-center", "", "data center")
	region := fs.String("region", "", "region")
	status := fs.String("status", "", "active, inactive or maintenance")
	ip := fs.String("ip", "", "host of the primary method")
	method := fs.String("method", "", "primary method type")
	port := fs.Int("port", 0, "primary method port")
	username := fs.String("username", "", "credential username")
	password := fs.String("password", "", "new password (masked values keep the current one)")
	keyFile := fs.String("ssh-key-file", "", "new private key file (- for stdin)")
	passphrase := fs.String("passphrase", "", "new key passphrase or SNMPv3 privacy key")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireID("id", *id); err != nil {
		return err
	}
	seen := visited(fs)

	u := target.ComprehensiveUpdate{
		TargetUpdate: target.TargetUpdate{
			Name:        optString(seen, "name", *name),
			Description: optString(seen, "description", *description),
			OSType:      optString(seen, "os", *osType),
			Environment: optString(seen, "environment", *environment),
			Location:    optString(seen, "location", *location),
			DataCenter:  optString(seen, "data-center", *dataCenter),
			Region:      optString(seen, "region", *region),
		},
		IPAddress:     optString(seen, "ip", *ip),
		MethodType:    optString(seen, "method", *method),
		Port:          optInt(seen, "port", *port),
		Username:      optString(seen, "username", *username),
		Password:      optSecret(seen, "password", *password),
		SSHPassphrase: optSecret(seen, "passphrase", *passphrase),
	}
	if seen["status"] {
		st := models.TargetStatus(*status)
		u.Status = &st
	}
	if seen["ssh-key-file"] {
		key, err := readKeyFile(*keyFile)
		if err != nil {
			return err
		}
		u.SSHKey = optSecret(seen, "ssh-key-file", key)
	}

	t, err := a.targets.UpdateTargetComprehensive(ctx, *id, u)
	if err != nil {
		return err
	}
	return printJSON(t)
}

func runTargetDelete(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("target delete")
	id := fs.Int64("id", 0, "target id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireID("id", *id); err != nil {
		return err
	}
	if err := a.targets.DeleteTarget(ctx, *id); err != nil {
		return err
	}
	fmt.Printf("target %d deleted\n", *id)
	return nil
}

func runTargetTest(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("target test")
	id := fs.Int64("id", 0, "target id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireID("id", *id); err != nil {
		return err
	}
	res, err := a.targets.TestTargetConnection(ctx, *id)
	if err != nil {
		return err
	}
	return printResult(res.Success, res)
}

func runTargetHealth(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("target health")
	id := fs.Int64("id", 0, "target id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireID("id", *id); err != nil {
		return err
	}
	res, err := a.targets.HealthCheckTarget(ctx, *id)
	if err != nil {
		return err
	}
	return printResult(res.Success, res)
}

// errProbeFailed makes a failed probe exit non-zero after its result
// has been printed.
var errProbeFailed = errors.New("connection test failed")

func printResult(ok bool, res any) error {
	if err := printJSON(res); err != nil {
		return err
	}
	if !ok {
		return errProbeFailed
	}
	return nil
}
