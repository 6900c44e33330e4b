package middleware

import (
    "net/http"

    "github.com/labstack/echo/v4"
    echomw "github.com/labstack/echo/v4/middleware"
)

// PermissiveCORS allows every origin, method and header, with credentials.
// Because browsers reject a literal "*" origin alongside credentials, the
// caller's Origin is echoed back instead.  An empty AllowHeaders makes Echo
// reflect Access-Control-Request-Headers on preflight.
func PermissiveCORS() echo.MiddlewareFunc {
    return echomw.CORSWithConfig(echomw.CORSConfig{
        AllowOrigins: []string{"*"},
        AllowMethods: []string{
            http.MethodGet, http.MethodHead, http.MethodPut, http.MethodPatch,
            http.MethodPost, http.MethodDelete, http.MethodOptions,
        },
        AllowCredentials:                         true,
        UnsafeWildcardOriginWithAllowCredentials: true,
    })
}
