package server

import gateway "github.com/keyhub-gw/keyhub/internal"

// Secret masking is a boundary concern: stored records keep full values,
// outbound management responses never do.

func maskSecret(v string, head, tail int) string {
	if len(v) <= head+tail {
		return "****"
	}
	return v[:head] + "****" + v[len(v)-tail:]
}

func maskedKey(k *gateway.APIKey) *gateway.APIKey {
	c := *k
	c.Key = maskSecret(k.Key, 4, 4)
	return &c
}

func maskedKeys(keys []*gateway.APIKey) []*gateway.APIKey {
	out := make([]*gateway.APIKey, len(keys))
	for i, k := range keys {
		out[i] = maskedKey(k)
	}
	return out
}

func maskedToken(t *gateway.Token) *gateway.Token {
	c := *t
	c.Token = maskSecret(t.Token, 6, 4)
	return &c
}

func maskedTokens(tokens []*gateway.Token) []*gateway.Token {
	out := make([]*gateway.Token, len(tokens))
	for i, t := range tokens {
		out[i] = maskedToken(t)
	}
	return out
}

func maskedProxy(p *gateway.Proxy) *gateway.Proxy {
	c := *p
	if c.Password != "" {
		c.Password = "****"
	}
	return &c
}

func maskedProxies(proxies []*gateway.Proxy) []*gateway.Proxy {
	out := make([]*gateway.Proxy, len(proxies))
	for i, p := range proxies {
		out[i] = maskedProxy(p)
	}
	return out
}
