package resolver

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
	"time"
)

// ErrForbiddenAddress：目标解析到了本机、内网或链路本地地址。
var ErrForbiddenAddress = errors.New("target address not allowed")

// 运营商级 NAT 100.64.0.0/10，net.IP 没有现成的判断。
var cgnat = &net.IPNet{IP: net.IPv4(100, 64, 0, 0), Mask: net.CIDRMask(10, 32)}

func forbiddenIP(ip net.IP) bool {
	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() ||
		ip.IsMulticast() ||
		ip.IsUnspecified() ||
		cgnat.Contains(ip)
}

// dialControl 在 DNS 解析之后、建连之前检查真实 IP，
// 所以每一跳跳转、以及 DNS 指向内网的域名都会被拦下。
func dialControl(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrForbiddenAddress, address)
	}
	ip := net.ParseIP(host)
	if ip == nil || forbiddenIP(ip) {
		return fmt.Errorf("%w: %s", ErrForbiddenAddress, host)
	}
	return nil
}

// NewTransport 返回出站请求用的 Transport。allowPrivate=false 时拒绝连接内网地址，
// 同时不走环境变量里的代理（否则检查的是代理的地址）。
func NewTransport(allowPrivate bool) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	if allowPrivate {
		return t
	}
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
		Control:   dialControl,
	}
	t.Proxy = nil
	t.DialContext = dialer.DialContext
	return t
}
