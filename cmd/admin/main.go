package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/shopspring/decimal"

	persistlog "stonevault.gg/internal/persistence/log"
	"stonevault.gg/internal/persistence/snapshot"
)

// Offline inspector for the economy data directory. Works on the
// snapshot documents and the audit stream directly; the server does
// not need to be running.
func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "balances":
			balancesCmd(os.Args[2:])
			return
		case "auctions":
			auctionsCmd(os.Args[2:])
			return
		case "audit":
			auditCmd(os.Args[2:])
			return
		case "verify":
			verifyCmd(os.Args[2:])
			return
		}
	}
	fmt.Fprintln(os.Stderr, "usage: admin <balances|auctions|audit|verify> [flags]")
	os.Exit(2)
}

func econDir(dataDir string) string {
	return filepath.Join(dataDir, "economy")
}

func balancesCmd(args []string) {
	fs := flag.NewFlagSet("balances", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	account := fs.String("account", "", "show a single account")
	_ = fs.Parse(args)

	doc, err := snapshot.ReadLedgerDoc(econDir(*dataDir), "")
	if err != nil {
		fmt.Fprintln(os.Stderr, "read balances:", err)
		os.Exit(1)
	}

	accounts := make([]string, 0, len(doc.Balances))
	for a := range doc.Balances {
		if *account != "" && a != *account {
			continue
		}
		accounts = append(accounts, a)
	}
	sort.Strings(accounts)
	for _, a := range accounts {
		cells := doc.Balances[a]
		curs := make([]string, 0, len(cells))
		for c := range cells {
			curs = append(curs, c)
		}
		sort.Strings(curs)
		for _, c := range curs {
			fmt.Printf("%s\t%s\t%s\n", a, c, cells[c])
		}
	}
}

func auctionsCmd(args []string) {
	fs := flag.NewFlagSet("auctions", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	var doc snapshot.MarketDocV1
	if err := snapshot.ReadDoc(econDir(*dataDir), snapshot.MarketFile, &doc); err != nil {
		fmt.Fprintln(os.Stderr, "read auctions:", err)
		os.Exit(1)
	}

	fmt.Printf("snapshot tick %d, next id %d, %d active\n", doc.Tick, doc.NextID, len(doc.Auctions))
	for _, a := range doc.Auctions {
		line := fmt.Sprintf("#%d\t%s\t%dx %s\tbid %s", a.ID, a.Seller, a.Count, a.Item, a.CurrentBid)
		if a.Bidder != "" {
			line += " by " + a.Bidder
		}
		if a.Buyout != "" {
			line += "\tbuyout " + a.Buyout
		}
		fmt.Printf("%s\tends @%d\n", line, a.EndTick)
	}
	for recipient, items := range doc.Pending {
		for _, it := range items {
			fmt.Printf("pending\t%s\t%dx %s\n", recipient, it.Count, it.Item)
		}
	}
}

func auditCmd(args []string) {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	account := fs.String("account", "", "filter by account")
	kind := fs.String("kind", "", "filter by tx kind")
	_ = fs.Parse(args)

	err := scanAudit(econDir(*dataDir), func(e persistlog.AuditEntry) {
		if *account != "" && e.Account != *account {
			return
		}
		if *kind != "" && e.Kind != *kind {
			return
		}
		desc := e.Description
		if e.Counterparty != "" {
			desc += " <-> " + e.Counterparty
		}
		fmt.Printf("%d\t%s\t%s\t%s %s\t%s\n", e.At, e.Account, e.Kind, e.Amount, e.Currency, desc)
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "read audit:", err)
		os.Exit(1)
	}
}

// verify recomputes each account's net flow from the audit stream and
// reports accounts whose snapshot balance disagrees. Starting grants
// are not in the stream, so a constant per-account offset is expected;
// anything else means lost or duplicated writes.
func verifyCmd(args []string) {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	currency := fs.String("currency", "COIN", "currency to verify")
	_ = fs.Parse(args)

	net := map[string]decimal.Decimal{}
	err := scanAudit(econDir(*dataDir), func(e persistlog.AuditEntry) {
		if e.Currency != *currency {
			return
		}
		amt, err := decimal.NewFromString(e.Amount)
		if err != nil {
			return
		}
		net[e.Account] = net[e.Account].Add(amt)
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "read audit:", err)
		os.Exit(1)
	}

	doc, err := snapshot.ReadLedgerDoc(econDir(*dataDir), *currency)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read balances:", err)
		os.Exit(1)
	}

	accounts := make([]string, 0, len(net))
	for a := range net {
		accounts = append(accounts, a)
	}
	sort.Strings(accounts)
	for _, a := range accounts {
		balStr := doc.Balances[a][*currency]
		bal, err := decimal.NewFromString(strings.TrimSpace(balStr))
		if err != nil {
			fmt.Printf("%s\tnet %s\tsnapshot missing\n", a, net[a])
			continue
		}
		fmt.Printf("%s\tnet %s\tsnapshot %s\toffset %s\n", a, net[a], bal, bal.Sub(net[a]))
	}
}

func scanAudit(dir string, fn func(persistlog.AuditEntry)) error {
	auditDir := filepath.Join(dir, "audit")
	ents, err := os.ReadDir(auditDir)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "audit-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(auditDir, name)
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		dec, err := zstd.NewReader(f)
		if err != nil {
			_ = f.Close()
			return err
		}
		sc := bufio.NewScanner(dec)
		sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
		for sc.Scan() {
			var e persistlog.AuditEntry
			if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
				dec.Close()
				_ = f.Close()
				return fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
			}
			fn(e)
		}
		scanErr := sc.Err()
		dec.Close()
		_ = f.Close()
		if scanErr != nil {
			return scanErr
		}
	}
	return nil
}
