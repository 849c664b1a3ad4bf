package server

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Voice Memos</title>
    <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/@picocss/pico@2/css/pico.min.css">
    <style>
        .memo { display: flex; align-items: center; gap: 1rem; }
        .memo img { height: 100px; }
        #timer { font-variant-numeric: tabular-nums; font-size: 2rem; }
    </style>
</head>
<body>
    <main class="container">
        <h1>Voice Memos</h1>
        <p id="timer">00:00</p>
        <div role="group">
            <button id="start" onclick="post('/record/start')">Record</button>
            <button id="stop" onclick="post('/record/stop')">Stop</button>
            <button id="delete" class="secondary" onclick="post('/record/delete')">Delete</button>
        </div>
        <p id="error"></p>
        <section id="memos"></section>
    </main>
    <script>
        const memos = new Map();

        async function post(path) {
            const res = await fetch(path, { method: 'POST' });
            const body = await res.json();
            document.getElementById('error').textContent = body.success === false ? body.error : '';
        }

        function render() {
            const section = document.getElementById('memos');
            section.innerHTML = '';
            for (const rec of [...memos.values()].sort((a, b) => a.index - b.index)) {
                const row = document.createElement('article');
                row.className = 'memo';
                const bars = rec.amplitudes.length;
                const label = rec.playback.is_playing ? 'Pause' : (rec.playback.playhead_fraction >= bars ? 'Replay' : 'Play');
                row.innerHTML = '<strong>Memo ' + (rec.index + 1) + '</strong>' +
                    '<button onclick="post(\'/recordings/' + rec.id + '/toggle\')">' + label + '</button>' +
                    '<img src="/recordings/' + rec.id + '/waveform.svg?f=' + rec.playback.playhead_fraction + '">';
                section.appendChild(row);
            }
        }

        async function poll() {
            const res = await fetch('/status');
            const status = await res.json();
            document.getElementById('timer').textContent = status.session.elapsed;
        }

        const ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/ws');
        ws.onmessage = (msg) => {
            const ev = JSON.parse(msg.data);
            if (ev.recordings) ev.recordings.forEach(r => memos.set(r.id, r));
            if (ev.recording) memos.set(ev.recording.id, ev.recording);
            if (ev.session) document.getElementById('timer').textContent = ev.session.elapsed;
            render();
        };
        setInterval(poll, 1000);
    </script>
</body>
</html>`
