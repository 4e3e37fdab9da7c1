package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"wg-fleet/pkg/equiv"
	"wg-fleet/pkg/extract"
	"wg-fleet/pkg/generate"
	"wg-fleet/pkg/keys"
	"wg-fleet/pkg/ledger"
	"wg-fleet/pkg/model"
	"wg-fleet/pkg/store"
)

// fleetctl is the operator CLI: thin calls into the engine against the
// local ledger database.
func main() {
	log.SetFlags(0)
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	cmd, args := os.Args[1], os.Args[2:]

	var err error
	switch cmd {
	case "import":
		err = runImport(args)
	case "export":
		err = runExport(args)
	case "rotate":
		err = runRotate(args)
	case "identities":
		err = runIdentities(args)
	case "history":
		err = runHistory(args)
	case "keypair":
		err = runKeypair()
	case "diff":
		err = runDiff(args)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s: %v", cmd, err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: fleetctl <command> [flags]

commands:
  import <file>        ingest a configuration file into the ledger
  export --guid <g>    regenerate the config for one device identity
  rotate --guid <g> --new-key <k> [--reason <r>]
  identities           list known identities
  history --guid <g>   show the rotation history of one identity
  keypair              generate a fresh keypair
  diff <a> <b>         check two config files for functional equivalence`)
}

func openLedger(fs *flag.FlagSet) (*ledger.Ledger, func()) {
	path := fs.Lookup("db").Value.String()
	s, err := store.NewSQLiteStore(path)
	if err != nil {
		log.Fatalf("open ledger database %s: %v", path, err)
	}
	return ledger.New(s), func() { _ = s.Close() }
}

func dbFlag(fs *flag.FlagSet) {
	def := os.Getenv("WG_FLEET_DB")
	if def == "" {
		def = "/var/lib/wg-fleet/ledger.db"
	}
	fs.String("db", def, "ledger database path")
}

func runImport(args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	dbFlag(fs)
	source := fs.String("source", "", "source label (defaults to the file name)")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("expected exactly one file")
	}
	path := fs.Arg(0)
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	label := *source
	if label == "" {
		label = filepath.Base(path)
	}

	led, closeFn := openLedger(fs)
	defer closeFn()
	importer := extract.NewImporter(led)
	_, report, err := importer.Import(label, string(raw))
	if err != nil {
		return err
	}
	for _, r := range report.Results {
		status := "ok"
		if !r.OK {
			status = "FAILED: " + r.Error
		}
		fmt.Printf("  entity %d %s  %s\n", r.Index, r.SectionTag, status)
	}
	fmt.Printf("%s: kind=%s passed=%d failed=%d\n", label, report.Kind, report.Passed, report.Failed)
	return nil
}

func runExport(args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	dbFlag(fs)
	guid := fs.String("guid", "", "device permanent identity")
	out := fs.String("out", "", "write to file instead of stdout")
	_ = fs.Parse(args)
	if *guid == "" {
		return fmt.Errorf("--guid is required")
	}

	led, closeFn := openLedger(fs)
	defer closeFn()
	device, ok, err := led.Store().GetDevice(*guid)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no device stored for identity %s", *guid)
	}
	var text string
	switch device.Kind {
	case model.KindCoordinationServer, model.KindSubnetRouter:
		text = generate.ExportServer(device)
	default:
		text = generate.Generate(device)
	}
	if *out != "" {
		return os.WriteFile(*out, []byte(text), 0o600)
	}
	fmt.Print(text)
	return nil
}

func runRotate(args []string) error {
	fs := flag.NewFlagSet("rotate", flag.ExitOnError)
	dbFlag(fs)
	guid := fs.String("guid", "", "permanent identity to rotate")
	newKey := fs.String("new-key", "", "new public key")
	reason := fs.String("reason", "", "why the key is being rotated")
	_ = fs.Parse(args)
	if *guid == "" || *newKey == "" {
		return fmt.Errorf("--guid and --new-key are required")
	}

	led, closeFn := openLedger(fs)
	defer closeFn()
	id, err := led.Rotate(*guid, *newKey, *reason)
	if err != nil {
		return err
	}
	fmt.Printf("rotated %s; current key %s\n", id.Hostname, id.CurrentPublicKey)
	return nil
}

func runIdentities(args []string) error {
	fs := flag.NewFlagSet("identities", flag.ExitOnError)
	dbFlag(fs)
	_ = fs.Parse(args)

	led, closeFn := openLedger(fs)
	defer closeFn()
	ids, err := led.Store().ListIdentities()
	if err != nil {
		return err
	}
	for _, id := range ids {
		rotated := ""
		if id.CurrentPublicKey != id.PermanentGuid {
			rotated = " (rotated)"
		}
		fmt.Printf("%-22s %-20s %s%s\n", id.Hostname, id.Kind, id.PermanentGuid, rotated)
	}
	return nil
}

func runHistory(args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	dbFlag(fs)
	guid := fs.String("guid", "", "permanent identity")
	_ = fs.Parse(args)
	if *guid == "" {
		return fmt.Errorf("--guid is required")
	}

	led, closeFn := openLedger(fs)
	defer closeFn()
	hist, err := led.History(*guid)
	if err != nil {
		return err
	}
	if len(hist) == 0 {
		fmt.Println("no rotations recorded")
		return nil
	}
	for _, ev := range hist {
		fmt.Printf("%s  %s -> %s  %s\n", ev.Timestamp.Format("2006-01-02 15:04:05"), ev.OldKey, ev.NewKey, ev.Reason)
	}
	return nil
}

func runKeypair() error {
	priv, pub, err := keys.GenerateKeypair()
	if err != nil {
		return err
	}
	fmt.Printf("PrivateKey = %s\nPublicKey = %s\n", priv, pub)
	return nil
}

func runDiff(args []string) error {
	fs := flag.NewFlagSet("diff", flag.ExitOnError)
	_ = fs.Parse(args)
	if fs.NArg() != 2 {
		return fmt.Errorf("expected two files")
	}
	a, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	b, err := os.ReadFile(fs.Arg(1))
	if err != nil {
		return err
	}
	diffs, err := equiv.Check(string(a), string(b))
	if err != nil {
		return err
	}
	if len(diffs) == 0 {
		fmt.Println("functionally equivalent")
		return nil
	}
	for _, d := range diffs {
		fmt.Println(d)
	}
	return fmt.Errorf("%d difference(s)", len(diffs))
}
