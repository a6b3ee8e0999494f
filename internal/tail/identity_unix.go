//go:build unix

package tail

import (
	"os"

	"golang.org/x/sys/unix"
)

func identityOf(path string, info os.FileInfo) (identity, bool) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return identity{}, false
	}
	return identity{dev: uint64(st.Dev), ino: uint64(st.Ino), inode: true}, true
}
