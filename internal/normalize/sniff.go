package normalize

import (
    "bytes"
    "strings"
)

// 容器格式的魔数签名
var magicSignatures = []struct {
    prefix []byte
    mime   string
}{
    {[]byte("%PDF-"), "application/pdf"},
    {[]byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}, "image/png"},
    {[]byte{0xFF, 0xD8, 0xFF}, "image/jpeg"},
    {[]byte("II*\x00"), "image/tiff"},
    {[]byte("MM\x00*"), "image/tiff"},
    {[]byte("BM"), "image/bmp"},
}

// SniffMime 按魔数识别容器格式,不依赖声明的扩展名
func SniffMime(data []byte) (string, bool) {
    for _, sig := range magicSignatures {
        if bytes.HasPrefix(data, sig.prefix) {
            return sig.mime, true
        }
    }
    return "", false
}

// CanonicalMime 归一化常见的同义 MIME 写法
func CanonicalMime(mime string) string {
    mime = strings.ToLower(strings.TrimSpace(mime))
    if i := strings.IndexByte(mime, ';'); i >= 0 {
        mime = strings.TrimSpace(mime[:i])
    }
    switch mime {
    case "image/jpg":
        return "image/jpeg"
    case "image/x-ms-bmp":
        return "image/bmp"
    default:
        return mime
    }
}
