package handler // declare the package name; contains HTTP handlers

import (
    "net/http" // net/http provides status codes

    "github.com/labstack/echo/v4" // echo is the web framework used for this project
)

// StatusResponse is the fixed payload of GET /.  Field names are capitalised
// on the wire.
type StatusResponse struct {
    Status string `json:"Status"`
    Owner  string `json:"Owner"`
}

// Status reports that the server is up.  It has no inputs and never fails.
func Status(c echo.Context) error {
    return c.JSON(http.StatusOK, StatusResponse{Status: "Server is running", Owner: "Tim"})
}
