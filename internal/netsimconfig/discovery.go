package netsimconfig

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Discovery is the parsed content of a netsim.ini discovery file
// (spec.md §6): key=value lines, missing values read as absent, malformed
// lines skipped.
type Discovery struct {
	GrpcAddress string // "grpc.port": either a bare port or host:port
	WebPort     int
	HasWebPort  bool
}

// DiscoveryFileName returns the instance-qualified discovery file name
// (spec.md §6: "netsim.ini or netsim_<instance>.ini").
func DiscoveryFileName(instance string) string {
	if instance == "" {
		return "netsim.ini"
	}
	return fmt.Sprintf("netsim_%s.ini", instance)
}

// DiscoveryPath joins the platform temp directory (honouring TMPDIR, spec.md
// §6) with the discovery file name.
func DiscoveryPath(instance string) string {
	return filepath.Join(os.TempDir(), DiscoveryFileName(instance))
}

// ParseDiscovery reads key=value lines from r, splitting each line at its
// first "=". Lines without an "=" or with an empty value are skipped rather
// than treated as errors, matching the discovery file's best-effort contract.
func ParseDiscovery(r io.Reader) Discovery {
	var d Discovery
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		switch key {
		case "grpc.port":
			d.GrpcAddress = value
		case "web.port":
			if port, err := strconv.Atoi(value); err == nil {
				d.WebPort = port
				d.HasWebPort = true
			}
		}
	}
	return d
}

// WriteDiscovery writes the key=value lines a client's ParseDiscovery
// expects, given the ports the daemon actually bound.
func WriteDiscovery(w io.Writer, grpcAddress string, webPort int) error {
	bw := bufio.NewWriter(w)
	if grpcAddress != "" {
		if _, err := fmt.Fprintf(bw, "grpc.port=%s\n", grpcAddress); err != nil {
			return err
		}
	}
	if webPort != 0 {
		if _, err := fmt.Fprintf(bw, "web.port=%d\n", webPort); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// LoadDiscovery reads and parses the discovery file for instance, returning
// a zero Discovery (not an error) if the file does not exist yet.
func LoadDiscovery(instance string) (Discovery, error) {
	f, err := os.Open(DiscoveryPath(instance))
	if os.IsNotExist(err) {
		return Discovery{}, nil
	}
	if err != nil {
		return Discovery{}, err
	}
	defer f.Close()
	return ParseDiscovery(f), nil
}
