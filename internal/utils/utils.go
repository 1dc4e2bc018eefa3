package utils

import (
	"fmt"
	"math/rand"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/apex/log/handlers/cli"
)

var normalPadding = cli.Default.Padding

func init() {
	rand.Seed(time.Now().Unix())
}

type stop struct {
	error
}

// Retry runs f, retrying with exponential backoff and jitter until it
// succeeds or attempts is exhausted.
func Retry(attempts int, sleep time.Duration, f func() error) error {
	if err := f(); err != nil {
		if s, ok := err.(stop); ok {
			return s.error
		}

		if attempts--; attempts > 0 {
			jitter := time.Duration(rand.Int63n(int64(sleep)))
			sleep = sleep + jitter/2

			time.Sleep(sleep)
			return Retry(attempts, 2*sleep, f)
		}
		return fmt.Errorf("after %d attempts, %v", attempts, err)
	}

	return nil
}

// ConvertStrToInt converts an input string (hex or decimal) to uint64
func ConvertStrToInt(intStr string) (uint64, error) {
	intStr = strings.ToLower(intStr)

	if strings.ContainsAny(intStr, "xabcdef") {
		intStr = strings.Replace(intStr, "0x", "", -1)
		intStr = strings.Replace(intStr, "x", "", -1)
		if out, err := strconv.ParseUint(intStr, 16, 64); err == nil {
			return out, err
		}
	}
	return strconv.ParseUint(intStr, 10, 64)
}

// Indent indents an apex log line to the supplied padding level
func Indent(f func(s string), level int) func(string) {
	return func(s string) {
		cli.Default.Padding = normalPadding * level
		f(s)
		cli.Default.Padding = normalPadding
	}
}

// Pad creates left padding for printf members
func Pad(length int) string {
	if length > 0 {
		return strings.Repeat(" ", length)
	}
	return " "
}

// Spawn runs name with args to completion, returning combined stdout/stderr
// on failure. spec.md §4.7/§4.8 mandate spawning real external tools for the
// binary copy (`/bin/cp -R`) and the optional source-volume mount
// (`osascript`) instead of an inline copy/mount routine, the same way the
// teacher shells out to hdiutil rather than re-implementing DMG attach.
func Spawn(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %s: %v: %s", name, strings.Join(args, " "), err, out)
	}
	return nil
}

// CopyTree spawns `/bin/cp -R` to recursively copy src to dst. spec.md
// §4.7 requires the real `cp` binary rather than a hand-rolled walker,
// since an inline copy has been observed to truncate files silently over
// SMBv2 mounts.
func CopyTree(src, dst string) error {
	return Spawn("/bin/cp", "-R", src, dst)
}

// MountSourceVolume asks Finder to mount a network source volume via
// osascript, matching the original tool's `bMountSource` gated
// `osascript -s o -e 'mount volume "..."'` invocation.
func MountSourceVolume(url string) error {
	return Spawn("osascript", "-s", "o", "-e", fmt.Sprintf(`mount volume %q`, url))
}
