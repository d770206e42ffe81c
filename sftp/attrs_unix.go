//go:build !windows

package sftp

import (
	"os"
	"syscall"
)

// fileStatFromInfoOs fills in the uid/gid bits of fileStat from fi's
// underlying *syscall.Stat_t, when the os.FileInfo came from a local
// unix filesystem (e.g. the server side's os.Lstat results).
func fileStatFromInfoOs(fi os.FileInfo, flags *uint32, fileStat *FileStat) {
	if sys, ok := fi.Sys().(*syscall.Stat_t); ok {
		*flags |= sshFileXferAttrUIDGID
		fileStat.UID = sys.Uid
		fileStat.GID = sys.Gid
	}
}
