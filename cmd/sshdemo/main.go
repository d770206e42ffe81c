// Command sshdemo is a reference ussh server: one listener, one user, and
// a session delegate that runs "exec" requests as a real local child
// process and hands a "subsystem sftp" request straight to sftp.Server.
// It boots the same way every other program in this tree does - flags and
// YAML config through uboot, logging through ulog, signals through uexit.
package main

import (
	"io"
	"net"
	"os"

	"github.com/tredeske/ussh"
	"github.com/tredeske/ussh/sftp"
	"github.com/tredeske/ussh/uboot"
	"github.com/tredeske/ussh/uconfig"
	"github.com/tredeske/ussh/uexec"
	"github.com/tredeske/ussh/uexit"
	"github.com/tredeske/ussh/ulog"
)

func main() {
	boot, err := uboot.SimpleBoot()
	if nil != err {
		ulog.Fatalf(1, "boot: %s", err)
	}

	var addr, hostKeyF, user, password, root string
	err = boot.Config.Chain().
		GetString("addr", &addr, uconfig.StringNotBlank()).
		GetString("hostKey", &hostKeyF).
		GetString("user", &user, uconfig.StringNotBlank()).
		GetString("password", &password, uconfig.StringNotBlank()).
		GetString("root", &root).
		Done()
	if nil != err {
		ulog.Fatalf(1, "sshdemo config: %s", err)
	}

	signer, err := hostSigner(hostKeyF)
	if nil != err {
		ulog.Fatalf(1, "sshdemo host key: %s", err)
	}

	cfg := &ussh.ServerConfig{
		HostSigners: []ussh.Signer{signer},
		PasswordCallback: func(u, p string) error {
			if u == user && p == password {
				return nil
			}
			return os.ErrPermission
		},
	}

	l, err := net.Listen("tcp", addr)
	if nil != err {
		ulog.Fatalf(1, "sshdemo listen: %s", err)
	}
	ulog.Printf("sshdemo: listening on %s", addr)

	go acceptLoop(l, cfg, root)

	uexit.SimpleSignalHandling()
}

// hostSigner loads pemFile as an OpenSSH private key, or - when pemFile is
// empty - generates a fresh throwaway ed25519 key for the life of this
// process, the way a demo rather than a production server would.
func hostSigner(pemFile string) (ussh.Signer, error) {
	if 0 == len(pemFile) {
		return ussh.GenerateEd25519Signer()
	}
	pemBytes, err := os.ReadFile(pemFile)
	if nil != err {
		return nil, err
	}
	return ussh.ParsePrivateKey(pemBytes, nil)
}

func acceptLoop(l net.Listener, cfg *ussh.ServerConfig, root string) {
	for {
		nc, err := l.Accept()
		if nil != err {
			ulog.Warnf("sshdemo: accept: %s", err)
			return
		}
		go serveConn(nc, cfg, root)
	}
}

func serveConn(nc net.Conn, cfg *ussh.ServerConfig, root string) {
	conn, err := ussh.NewServerConn(nc, cfg)
	if nil != err {
		ulog.Warnf("sshdemo: handshake: %s", err)
		return
	}
	defer conn.Close()

	for {
		chanType, _, localID, ok := conn.Accept()
		if !ok {
			return
		}
		if "session" != chanType {
			conn.RejectChannel(localID, 3, "only session channels supported")
			continue
		}
		ch, err := conn.AcceptChannel(localID)
		if nil != err {
			ulog.Warnf("sshdemo: accept channel: %s", err)
			continue
		}

		// ch's concrete type is private to package ussh, so everything
		// that needs its fields (channel requests) runs in this closure
		// rather than being handed off to a named helper.
		go func() {
			defer ch.Close()
			for req := range ch.Requests() {
				switch req.Request {

				case "exec":
					cmd := ussh.ParseExecRequest(req.RequestSpecificData)
					child := uexec.NewChild("sh", "-c", cmd).InheritEnv(nil)
					child.CombineOutput()
					if err := child.AddPipe(uexec.STDIN); nil != err {
						ulog.Warnf("sshdemo: exec pipe: %s", err)
						return
					}
					if err := child.Start(); nil != err {
						ulog.Warnf("sshdemo: exec start: %s", err)
						ch.SendRequest("exit-status", false, ussh.ExitStatusPayload(1))
						return
					}
					go func() {
						io.Copy(child.ParentIo[uexec.STDIN], ch)
						child.ParentIo[uexec.STDIN].Close()
					}()
					io.Copy(ch, child.ParentIo[uexec.STDOUT])
					child.Wait()
					status, _ := child.Status()
					ch.SendRequest("exit-status", false, ussh.ExitStatusPayload(uint32(status)))
					return

				case "subsystem":
					if "sftp" == ussh.ParseSubsystemRequest(req.RequestSpecificData) {
						handler := &sftp.OsHandler{Root: root}
						sftp.NewServer(ch, ch, handler).Serve()
					}
					return

				default:
					// shell, pty-req, env, etc: not offered by this demo.
				}
			}
		}()
	}
}
