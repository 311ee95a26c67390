package main

// timeoutBody is written by http.TimeoutHandler with status 503 when a handler misses its deadline.
const timeoutBody = `<html lang="en">
<head><title>Timeout</title></head>
<body>
<h1>Timeout</h1>
<p>The request took too long. Reload the page to try again.</p>
</body>
</html>
`
