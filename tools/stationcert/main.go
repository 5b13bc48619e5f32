// Command stationcert maintains the CA of an rfidlog installation and
// issues backend and station certificates from it.
//
//	stationcert --dir certs --server localhost --station dock-1 --station dock-2
//
// The CA is created on first use and reused afterwards.
package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"

	"github.com/rfidvision/rfidlog/internal/certgen"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	flags := pflag.NewFlagSet("stationcert", pflag.ContinueOnError)
	dir := flags.StringP("dir", "d", "certs", "output directory")
	caName := flags.String("ca-name", "rfidlog CA", "CA common name, used when the CA is created")
	servers := flags.StringSlice("server", nil, "backend host names or IPs")
	stations := flags.StringSlice("station", nil, "station names to issue client certificates for")
	days := flags.Int("days", 365, "validity of issued certificates in days")
	if err := flags.Parse(args); err != nil {
		return err
	}
	validity := time.Duration(*days) * 24 * time.Hour

	ca, created, err := authority(*dir, *caName)
	if err != nil {
		return err
	}
	if created {
		fmt.Fprintf(out, "created CA %q in %s\n", ca.Cert.Subject.CommonName, *dir)
	}

	if len(*servers) > 0 {
		certPEM, keyPEM, err := ca.IssueServer(*servers, validity)
		if err != nil {
			return err
		}
		if err := certgen.WritePair(*dir, "server", certPEM, keyPEM); err != nil {
			return err
		}
		fmt.Fprintf(out, "issued server certificate for %v\n", *servers)
	}

	for _, station := range *stations {
		certPEM, keyPEM, err := ca.IssueStation(station, validity)
		if err != nil {
			return err
		}
		if err := certgen.WritePair(*dir, "station-"+station, certPEM, keyPEM); err != nil {
			return err
		}
		fmt.Fprintf(out, "issued station certificate %q\n", station)
	}
	return nil
}

// authority loads <dir>/ca.crt and ca.key, creating them when absent.
func authority(dir, name string) (*certgen.Authority, bool, error) {
	certPath, keyPath := filepath.Join(dir, "ca.crt"), filepath.Join(dir, "ca.key")
	ca, err := certgen.LoadAuthority(certPath, keyPath)
	if err == nil {
		return ca, false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, false, err
	}

	ca, err = certgen.NewAuthority(name, 10*365*24*time.Hour)
	if err != nil {
		return nil, false, err
	}
	certPEM, keyPEM, err := ca.PEM()
	if err != nil {
		return nil, false, err
	}
	if err := certgen.WritePair(dir, "ca", certPEM, keyPEM); err != nil {
		return nil, false, err
	}
	return ca, true, nil
}
