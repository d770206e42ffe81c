//go:build windows

package sftp

import "os"

// fileStatFromInfoOs is a no-op on windows: there is no portable uid/gid to
// recover from a Windows os.FileInfo.
func fileStatFromInfoOs(fi os.FileInfo, flags *uint32, fileStat *FileStat) {}
